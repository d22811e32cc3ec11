package repository

const (
	tablePlayers      = "players"
	tableMatches      = "matches"
	tablePlayerStats  = "player_stats"
	tableOpeningStats = "opening_stats"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS players (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		country TEXT NOT NULL DEFAULT 'DZ',
		current_rating INTEGER NULL,
		avatar_url TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS matches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		player_id INTEGER NOT NULL REFERENCES players(id),
		opponent_name TEXT NOT NULL,
		opponent_rating INTEGER NULL,
		result TEXT NOT NULL,
		date_played TEXT NOT NULL,
		time_control TEXT NOT NULL,
		player_color TEXT NOT NULL,
		opening_name TEXT NOT NULL,
		opening_eco TEXT NOT NULL,
		moves_count INTEGER NOT NULL DEFAULT 0,
		pgn_content TEXT NOT NULL,
		game_url TEXT NOT NULL DEFAULT '',
		termination TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		UNIQUE (player_id, opponent_name, date_played, time_control)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_matches_player_date ON matches(player_id, date_played)`,
	`CREATE TABLE IF NOT EXISTS player_stats (
		player_id INTEGER PRIMARY KEY REFERENCES players(id),
		total_games INTEGER NOT NULL DEFAULT 0,
		wins INTEGER NOT NULL DEFAULT 0,
		losses INTEGER NOT NULL DEFAULT 0,
		draws INTEGER NOT NULL DEFAULT 0,
		total_moves INTEGER NOT NULL DEFAULT 0,
		favorite_opening TEXT NOT NULL DEFAULT '',
		last_analysis DATETIME NULL
	)`,
	`CREATE TABLE IF NOT EXISTS opening_stats (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		player_id INTEGER NOT NULL REFERENCES players(id),
		opening_name TEXT NOT NULL,
		opening_eco TEXT NOT NULL,
		games_played INTEGER NOT NULL DEFAULT 0,
		wins INTEGER NOT NULL DEFAULT 0,
		losses INTEGER NOT NULL DEFAULT 0,
		draws INTEGER NOT NULL DEFAULT 0,
		color_played TEXT NOT NULL,
		UNIQUE (player_id, opening_name, opening_eco)
	)`,
}

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS players (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		username VARCHAR(64) NOT NULL UNIQUE,
		display_name VARCHAR(255) NOT NULL DEFAULT '',
		country VARCHAR(8) NOT NULL DEFAULT 'DZ',
		current_rating INT NULL,
		avatar_url VARCHAR(512) NOT NULL DEFAULT '',
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS matches (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		player_id BIGINT NOT NULL,
		opponent_name VARCHAR(100) COLLATE utf8mb4_bin NOT NULL,
		opponent_rating INT NULL,
		result VARCHAR(8) NOT NULL,
		date_played VARCHAR(10) NOT NULL,
		time_control VARCHAR(32) COLLATE utf8mb4_bin NOT NULL,
		player_color VARCHAR(8) NOT NULL,
		opening_name VARCHAR(191) COLLATE utf8mb4_bin NOT NULL,
		opening_eco VARCHAR(8) COLLATE utf8mb4_bin NOT NULL,
		moves_count INT NOT NULL DEFAULT 0,
		pgn_content MEDIUMTEXT NOT NULL,
		game_url VARCHAR(512) NOT NULL DEFAULT '',
		termination VARCHAR(255) NOT NULL DEFAULT '',
		created_at DATETIME(6) NOT NULL,
		UNIQUE KEY uq_matches_dedup (player_id, opponent_name, date_played, time_control),
		KEY idx_matches_player_date (player_id, date_played),
		CONSTRAINT fk_matches_player FOREIGN KEY (player_id) REFERENCES players(id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS player_stats (
		player_id BIGINT PRIMARY KEY,
		total_games INT NOT NULL DEFAULT 0,
		wins INT NOT NULL DEFAULT 0,
		losses INT NOT NULL DEFAULT 0,
		draws INT NOT NULL DEFAULT 0,
		total_moves BIGINT NOT NULL DEFAULT 0,
		favorite_opening VARCHAR(191) NOT NULL DEFAULT '',
		last_analysis DATETIME(6) NULL,
		CONSTRAINT fk_player_stats_player FOREIGN KEY (player_id) REFERENCES players(id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS opening_stats (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		player_id BIGINT NOT NULL,
		opening_name VARCHAR(191) COLLATE utf8mb4_bin NOT NULL,
		opening_eco VARCHAR(8) COLLATE utf8mb4_bin NOT NULL,
		games_played INT NOT NULL DEFAULT 0,
		wins INT NOT NULL DEFAULT 0,
		losses INT NOT NULL DEFAULT 0,
		draws INT NOT NULL DEFAULT 0,
		color_played VARCHAR(8) NOT NULL,
		UNIQUE KEY uq_opening_stats (player_id, opening_name, opening_eco),
		CONSTRAINT fk_opening_stats_player FOREIGN KEY (player_id) REFERENCES players(id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS players (
		id BIGSERIAL PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		country TEXT NOT NULL DEFAULT 'DZ',
		current_rating INTEGER NULL,
		avatar_url TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS matches (
		id BIGSERIAL PRIMARY KEY,
		player_id BIGINT NOT NULL REFERENCES players(id),
		opponent_name TEXT NOT NULL,
		opponent_rating INTEGER NULL,
		result TEXT NOT NULL,
		date_played TEXT NOT NULL,
		time_control TEXT NOT NULL,
		player_color TEXT NOT NULL,
		opening_name TEXT NOT NULL,
		opening_eco TEXT NOT NULL,
		moves_count INTEGER NOT NULL DEFAULT 0,
		pgn_content TEXT NOT NULL,
		game_url TEXT NOT NULL DEFAULT '',
		termination TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE (player_id, opponent_name, date_played, time_control)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_matches_player_date ON matches(player_id, date_played)`,
	`CREATE TABLE IF NOT EXISTS player_stats (
		player_id BIGINT PRIMARY KEY REFERENCES players(id),
		total_games INTEGER NOT NULL DEFAULT 0,
		wins INTEGER NOT NULL DEFAULT 0,
		losses INTEGER NOT NULL DEFAULT 0,
		draws INTEGER NOT NULL DEFAULT 0,
		total_moves BIGINT NOT NULL DEFAULT 0,
		favorite_opening TEXT NOT NULL DEFAULT '',
		last_analysis TIMESTAMPTZ NULL
	)`,
	`CREATE TABLE IF NOT EXISTS opening_stats (
		id BIGSERIAL PRIMARY KEY,
		player_id BIGINT NOT NULL REFERENCES players(id),
		opening_name TEXT NOT NULL,
		opening_eco TEXT NOT NULL,
		games_played INTEGER NOT NULL DEFAULT 0,
		wins INTEGER NOT NULL DEFAULT 0,
		losses INTEGER NOT NULL DEFAULT 0,
		draws INTEGER NOT NULL DEFAULT 0,
		color_played TEXT NOT NULL,
		UNIQUE (player_id, opening_name, opening_eco)
	)`,
}
