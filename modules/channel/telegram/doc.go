// Package telegram implements the Telegram Bot API channel for herald.
//
// It bridges Telegram and herald's platform-agnostic message model:
//
//   - Inbound conversion for text, photo, audio, voice, document,
//     location, and sticker messages, with mention extraction
//   - Outbound dispatch with automatic chunking, MarkdownV2 formatting,
//     and emoji reactions via setMessageReaction
//   - Two delivery modes: long polling (default) and webhook through
//     the gateway's webhook dispatcher
//   - Streaming replies that grow by editing a placeholder message
//   - Typing indicators via sendChatAction
//   - Per-chat and global send throttling within Telegram's limits
//
// The module registers itself as "channel.telegram" and talks to the
// Bot API over plain net/http; no Telegram SDK is involved. When a
// key-value memory backend is loaded, the poller persists its update
// offset there so restarts do not replay old messages.
package telegram
