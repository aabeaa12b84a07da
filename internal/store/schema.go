package store

const postgresSchema = `
CREATE TABLE IF NOT EXISTS equities_data (
	"SYMBOL"                  text        NOT NULL,
	"COMPANY_NAME"            text,
	"SUBJECT"                 text        NOT NULL,
	"DETAILS"                 text,
	"BROADCAST_DATE_TIME"     timestamptz NOT NULL,
	"RECEIPT_DATE_TIME"       timestamptz,
	"DISSEMINATION_DATE_TIME" timestamptz,
	"DIFFERENCE"              bigint,
	"ATTACHMENT"              text,
	"FILE_SIZE"               text,
	created_at                timestamptz NOT NULL DEFAULT now(),
	updated_at                timestamptz NOT NULL DEFAULT now(),
	CONSTRAINT equities_data_natural_key UNIQUE ("SYMBOL", "SUBJECT", "BROADCAST_DATE_TIME")
);
CREATE INDEX IF NOT EXISTS equities_data_broadcast_idx ON equities_data ("BROADCAST_DATE_TIME" DESC);
CREATE TABLE IF NOT EXISTS download_logs (
	id            uuid        PRIMARY KEY,
	status        text        NOT NULL CHECK (status IN ('info', 'success', 'warning', 'error')),
	message       text        NOT NULL DEFAULT '',
	records_added integer     NOT NULL DEFAULT 0 CHECK (records_added >= 0),
	created_at    timestamptz NOT NULL DEFAULT now(),
	updated_at    timestamptz
);
CREATE INDEX IF NOT EXISTS download_logs_created_idx ON download_logs (created_at DESC);
`

// Timestamps are stored as fixed-width UTC text so they sort lexically.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS equities_data (
		"SYMBOL"                  TEXT    NOT NULL,
		"COMPANY_NAME"            TEXT,
		"SUBJECT"                 TEXT    NOT NULL,
		"DETAILS"                 TEXT,
		"BROADCAST_DATE_TIME"     TEXT    NOT NULL,
		"RECEIPT_DATE_TIME"       TEXT,
		"DISSEMINATION_DATE_TIME" TEXT,
		"DIFFERENCE"              INTEGER,
		"ATTACHMENT"              TEXT,
		"FILE_SIZE"               TEXT,
		created_at                TEXT    NOT NULL,
		updated_at                TEXT    NOT NULL,
		UNIQUE ("SYMBOL", "SUBJECT", "BROADCAST_DATE_TIME")
	)`,
	`CREATE INDEX IF NOT EXISTS equities_data_broadcast_idx ON equities_data ("BROADCAST_DATE_TIME" DESC)`,
	`CREATE TABLE IF NOT EXISTS download_logs (
		id            TEXT    PRIMARY KEY,
		status        TEXT    NOT NULL CHECK (status IN ('info', 'success', 'warning', 'error')),
		message       TEXT    NOT NULL DEFAULT '',
		records_added INTEGER NOT NULL DEFAULT 0 CHECK (records_added >= 0),
		created_at    TEXT    NOT NULL,
		updated_at    TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS download_logs_created_idx ON download_logs (created_at DESC)`,
}

const announcementColumns = `"SYMBOL", "COMPANY_NAME", "SUBJECT", "DETAILS", "BROADCAST_DATE_TIME", "RECEIPT_DATE_TIME", "DISSEMINATION_DATE_TIME", "DIFFERENCE", "ATTACHMENT", "FILE_SIZE"`

const conflictUpdate = `ON CONFLICT ("SYMBOL", "SUBJECT", "BROADCAST_DATE_TIME") DO UPDATE SET
	"COMPANY_NAME" = excluded."COMPANY_NAME",
	"DETAILS" = excluded."DETAILS",
	"RECEIPT_DATE_TIME" = excluded."RECEIPT_DATE_TIME",
	"DISSEMINATION_DATE_TIME" = excluded."DISSEMINATION_DATE_TIME",
	"DIFFERENCE" = excluded."DIFFERENCE",
	"ATTACHMENT" = excluded."ATTACHMENT",
	"FILE_SIZE" = excluded."FILE_SIZE",
	updated_at = excluded.updated_at`
