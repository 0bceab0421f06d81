// Package chat runs one anonymous, read-only Twitch chat session per channel.
//
// A Session owns the connection lifecycle (connect, handshake, join,
// reconnect with backoff) and dispatches every parsed line in arrival order
// from a single goroutine. Chat messages pass a filter chain (blocked users,
// commands, bots), are enriched with badges, emotes, cheer tiers and a
// display color by the Enricher, and are kept in a bounded Store. Every Store
// mutation is reported to an optional Notifier so a presentation layer can
// follow the chat without polling.
//
// Emote and badge registries are shared, read-mostly caches injected through
// Options; a Session never blocks on them. A failing third-party source only
// means a message renders without that decoration.
package chat
