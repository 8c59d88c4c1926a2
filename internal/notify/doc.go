// Package notify defines how a finalized call leaves the recorder. A
// Notifier receives a CallCompleted once the end-of-call report has been
// produced; Multi fans it out to the configured sinks (webhook, Redis
// pub/sub, the local archive and the audio artifact store).
package notify
