// Package services implements the driving port interfaces.
// Services contain the core logic of both pipelines and orchestrate
// calls to driven ports (adapters).
//
// Ingestion lists, loads, chunks, embeds and upserts files; the chat
// service retrieves context, composes a prompt and keeps the session
// memory. Services are pure Go with no CGO.
package services
