package postgres

// Schema creates the entity tables. Numeric columns hold arbitrary-precision
// integers and decimals; they are exchanged with the driver as text.
const Schema = `
CREATE TABLE IF NOT EXISTS positions (
	id                           TEXT PRIMARY KEY,
	owner                        TEXT,
	pool                         TEXT NOT NULL,
	token0                       TEXT NOT NULL,
	token1                       TEXT NOT NULL,
	tick_lower                   TEXT NOT NULL,
	tick_upper                   TEXT NOT NULL,
	liquidity                    NUMERIC NOT NULL,
	deposited_token0             NUMERIC NOT NULL,
	deposited_token1             NUMERIC NOT NULL,
	withdrawn_token0             NUMERIC NOT NULL,
	withdrawn_token1             NUMERIC NOT NULL,
	collected_token0             NUMERIC NOT NULL,
	collected_token1             NUMERIC NOT NULL,
	collected_fees_token0        NUMERIC NOT NULL,
	collected_fees_token1        NUMERIC NOT NULL,
	fee_growth_inside0_last_x128 NUMERIC NOT NULL,
	fee_growth_inside1_last_x128 NUMERIC NOT NULL,
	transaction_id               TEXT NOT NULL,
	last_block_number            BIGINT,
	last_log_index               BIGINT,
	updated_at                   TIMESTAMPTZ NOT NULL DEFAULT now()
);

ALTER TABLE positions ADD COLUMN IF NOT EXISTS last_block_number BIGINT;
ALTER TABLE positions ADD COLUMN IF NOT EXISTS last_log_index BIGINT;

CREATE TABLE IF NOT EXISTS position_snapshots (
	id                           TEXT PRIMARY KEY,
	owner                        TEXT NOT NULL,
	pool                         TEXT NOT NULL,
	position                     TEXT NOT NULL,
	block_number                 BIGINT NOT NULL,
	timestamp                    BIGINT NOT NULL,
	liquidity                    NUMERIC NOT NULL,
	deposited_token0             NUMERIC NOT NULL,
	deposited_token1             NUMERIC NOT NULL,
	withdrawn_token0             NUMERIC NOT NULL,
	withdrawn_token1             NUMERIC NOT NULL,
	collected_fees_token0        NUMERIC NOT NULL,
	collected_fees_token1        NUMERIC NOT NULL,
	transaction_id               TEXT NOT NULL,
	fee_growth_inside0_last_x128 NUMERIC NOT NULL,
	fee_growth_inside1_last_x128 NUMERIC NOT NULL
);

CREATE INDEX IF NOT EXISTS position_snapshots_position_idx ON position_snapshots (position, block_number);

CREATE TABLE IF NOT EXISTS tokens (
	id                               TEXT PRIMARY KEY,
	symbol                           TEXT NOT NULL,
	name                             TEXT NOT NULL,
	decimals                         SMALLINT NOT NULL,
	total_supply                     NUMERIC NOT NULL,
	derived_eth                      NUMERIC NOT NULL,
	volume                           NUMERIC NOT NULL,
	volume_usd                       NUMERIC NOT NULL,
	untracked_volume_usd             NUMERIC NOT NULL,
	fees_usd                         NUMERIC NOT NULL,
	total_value_locked               NUMERIC NOT NULL,
	total_value_locked_usd           NUMERIC NOT NULL,
	total_value_locked_usd_untracked NUMERIC NOT NULL,
	tx_count                         BIGINT NOT NULL,
	pool_count                       BIGINT NOT NULL,
	whitelist_pools                  TEXT[] NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS pools (
	id                               TEXT PRIMARY KEY,
	token0                           TEXT NOT NULL,
	token1                           TEXT NOT NULL,
	fee_tier                         BIGINT NOT NULL,
	liquidity                        NUMERIC NOT NULL,
	sqrt_price                       NUMERIC NOT NULL,
	fee_growth_global0_x128          NUMERIC NOT NULL,
	fee_growth_global1_x128          NUMERIC NOT NULL,
	observation_index                BIGINT NOT NULL,
	token0_price                     NUMERIC NOT NULL,
	token1_price                     NUMERIC NOT NULL,
	created_at_timestamp             BIGINT NOT NULL,
	created_at_block_number          BIGINT NOT NULL,
	liquidity_provider_count         BIGINT NOT NULL,
	tx_count                         BIGINT NOT NULL,
	total_value_locked_token0        NUMERIC NOT NULL,
	total_value_locked_token1        NUMERIC NOT NULL,
	total_value_locked_usd           NUMERIC NOT NULL,
	total_value_locked_eth           NUMERIC NOT NULL,
	total_value_locked_usd_untracked NUMERIC NOT NULL,
	volume_token0                    NUMERIC NOT NULL,
	volume_token1                    NUMERIC NOT NULL,
	volume_usd                       NUMERIC NOT NULL,
	fees_usd                         NUMERIC NOT NULL,
	untracked_volume_usd             NUMERIC NOT NULL,
	collected_fees_token0            NUMERIC NOT NULL,
	collected_fees_token1            NUMERIC NOT NULL,
	collected_fees_usd               NUMERIC NOT NULL
);

CREATE TABLE IF NOT EXISTS transactions (
	id           TEXT PRIMARY KEY,
	block_number BIGINT NOT NULL,
	timestamp    BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS reconcile_state (
	name               TEXT PRIMARY KEY,
	last_block_number  BIGINT NOT NULL,
	last_log_index     BIGINT NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);
`
