// Package ingest drives a decoder from a live byte source.
//
// Ownership boundary:
// - Session: one opened source, one decoder, the read loop
// - Supervisor: open/run/close and restart with backoff
// - Source/Opener/Sink/Filter collaborator contracts
//
// Decode errors are local: they are logged, counted and handed to the
// OnDecodeError hook, and the loop keeps going. A closed source or a transport
// failure ends the session; whether to start another is the Supervisor's call.
package ingest
