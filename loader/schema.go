package loader

// schema はアプリ起動時に適用するデータベーススキーマです。
// すべて IF NOT EXISTS で冪等に適用できます。
const schema = `
CREATE TABLE IF NOT EXISTS product_master (
    product_code TEXT PRIMARY KEY,
    gs1_code     TEXT NOT NULL DEFAULT '',
    product_name TEXT NOT NULL DEFAULT '',
    maker_name   TEXT NOT NULL DEFAULT '',
    unit_name    TEXT NOT NULL DEFAULT '',
    category     TEXT NOT NULL DEFAULT '',
    shelf_number TEXT NOT NULL DEFAULT '',
    unit_price   REAL NOT NULL DEFAULT 0,
    origin       TEXT NOT NULL DEFAULT 'local',
    user_notes   TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_product_master_gs1 ON product_master(gs1_code);

CREATE TABLE IF NOT EXISTS lots (
    lot_id       TEXT PRIMARY KEY,
    product_code TEXT NOT NULL,
    lot_number   TEXT NOT NULL DEFAULT '',
    expiry_date  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS count_sessions (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    name         TEXT NOT NULL DEFAULT '',
    location     TEXT NOT NULL DEFAULT '',
    status       TEXT NOT NULL DEFAULT 'DRAFT',
    created_at   TEXT NOT NULL,
    started_at   TEXT,
    completed_at TEXT
);

CREATE TABLE IF NOT EXISTS count_items (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    count_id     INTEGER NOT NULL,
    product_code TEXT NOT NULL,
    lot_id       TEXT,
    expected_qty REAL NOT NULL DEFAULT 0,
    counted      INTEGER NOT NULL DEFAULT 0,
    counted_qty  REAL,
    counted_at   TEXT,
    counted_by   TEXT,
    notes        TEXT
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_count_items_key
    ON count_items(count_id, product_code, IFNULL(lot_id, ''));
`
