package sqlite

// schema mirrors migrations/001_init.up.sql. Timestamps are fixed-width UTC
// text so they sort lexically.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id           TEXT PRIMARY KEY,
    email        TEXT NOT NULL UNIQUE,
    role         TEXT NOT NULL,
    display_name TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS bookings (
    id         TEXT PRIMARY KEY,
    created_by TEXT NOT NULL REFERENCES users(id),
    created_to TEXT NOT NULL REFERENCES users(id),
    status     TEXT NOT NULL DEFAULT 'pending'
);

CREATE TABLE IF NOT EXISTS firm_members (
    firm_user_id   TEXT NOT NULL,
    member_user_id TEXT NOT NULL,
    PRIMARY KEY (firm_user_id, member_user_id)
);

CREATE TABLE IF NOT EXISTS chat_rooms (
    id         TEXT PRIMARY KEY,
    booking_id TEXT NOT NULL UNIQUE,
    is_active  INTEGER NOT NULL DEFAULT 1,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS chat_participants (
    id        TEXT PRIMARY KEY,
    room_id   TEXT NOT NULL REFERENCES chat_rooms(id),
    user_id   TEXT NOT NULL REFERENCES users(id),
    is_admin  INTEGER NOT NULL DEFAULT 0,
    joined_at TEXT NOT NULL,
    UNIQUE (room_id, user_id)
);

CREATE TABLE IF NOT EXISTS chat_messages (
    seq        INTEGER PRIMARY KEY AUTOINCREMENT,
    id         TEXT NOT NULL UNIQUE,
    room_id    TEXT NOT NULL REFERENCES chat_rooms(id),
    sender_id  TEXT NOT NULL REFERENCES users(id),
    message    TEXT NOT NULL,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_messages_room ON chat_messages (room_id, created_at, seq);

CREATE TABLE IF NOT EXISTS chat_message_reads (
    id         TEXT PRIMARY KEY,
    message_id TEXT NOT NULL REFERENCES chat_messages(id),
    user_id    TEXT NOT NULL REFERENCES users(id),
    read_at    TEXT NOT NULL,
    UNIQUE (message_id, user_id)
);

CREATE TABLE IF NOT EXISTS notifications (
    id           TEXT PRIMARY KEY,
    recipient_id TEXT NOT NULL,
    actor_id     TEXT,
    type         TEXT NOT NULL,
    title        TEXT NOT NULL,
    message      TEXT NOT NULL DEFAULT '',
    entity_type  TEXT,
    entity_id    TEXT,
    metadata     TEXT NOT NULL DEFAULT '{}',
    is_read      INTEGER NOT NULL DEFAULT 0,
    created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications (recipient_id, is_read, created_at);
`
