// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import "github.com/ManuGH/gestprep/internal/persistence/sqlite"

// Quantities and prices are TEXT in fixed two-decimal notation; timestamps
// are TEXT in timeLayout (UTC), which sorts chronologically.
var migrations = []sqlite.Migration{
	{Version: 1, Name: "catalog", SQL: `
	CREATE TABLE sites (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		nom TEXT NOT NULL UNIQUE,
		description TEXT
	);
	CREATE TABLE unites (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		nom TEXT NOT NULL,
		site_id INTEGER NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
		description TEXT,
		UNIQUE (site_id, nom)
	);
	CREATE TABLE trains (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		nom TEXT NOT NULL,
		unite_id INTEGER NOT NULL REFERENCES unites(id) ON DELETE CASCADE,
		description TEXT,
		UNIQUE (unite_id, nom)
	);
	CREATE TABLE equipements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tag TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL,
		train_id INTEGER NOT NULL REFERENCES trains(id) ON DELETE CASCADE
	);
	CREATE TABLE categories_article (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		nom TEXT NOT NULL UNIQUE,
		description TEXT
	);
	CREATE TABLE stocks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		nom TEXT NOT NULL,
		site_id INTEGER NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
		type_stock TEXT NOT NULL DEFAULT 'MAGASIN' CHECK (type_stock IN ('MAGASIN', 'HORS_MAGASIN')),
		description TEXT,
		emplacement TEXT NOT NULL,
		UNIQUE (nom, type_stock, emplacement)
	);
	CREATE TABLE articles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code_article TEXT NOT NULL,
		description TEXT NOT NULL,
		specification TEXT,
		prix TEXT,
		devise TEXT CHECK (devise IS NULL OR devise IN ('EUR', 'USD', 'GBP', 'DZD')),
		stock_id INTEGER NOT NULL REFERENCES stocks(id) ON DELETE CASCADE,
		categorie_article_id INTEGER NOT NULL REFERENCES categories_article(id) ON DELETE CASCADE,
		unite_mesure TEXT NOT NULL,
		quantite_initiale TEXT NOT NULL,
		quantite_stock TEXT NOT NULL,
		seuil_alerte TEXT NOT NULL,
		UNIQUE (code_article, stock_id)
	);
	CREATE TABLE phases (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		nom TEXT NOT NULL UNIQUE,
		description TEXT
	);
	CREATE TABLE types_platinage (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		nom TEXT NOT NULL UNIQUE,
		description TEXT
	);
	CREATE TABLE platinages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		equipement_id INTEGER NOT NULL REFERENCES equipements(id) ON DELETE CASCADE,
		article_id INTEGER NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
		type_platinage_id INTEGER NOT NULL REFERENCES types_platinage(id) ON DELETE CASCADE,
		repere TEXT NOT NULL,
		date_debut TEXT,
		date_fin TEXT,
		remarque TEXT
	);
	CREATE TABLE phase_platinages (
		phase_id INTEGER NOT NULL REFERENCES phases(id) ON DELETE CASCADE,
		platinage_id INTEGER NOT NULL REFERENCES platinages(id) ON DELETE CASCADE,
		PRIMARY KEY (phase_id, platinage_id)
	);
	CREATE INDEX idx_articles_stock ON articles(stock_id);
	CREATE INDEX idx_platinages_equipement ON platinages(equipement_id);
	`},
	{Version: 2, Name: "accounts", SQL: `
	CREATE TABLE users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL UNIQUE COLLATE NOCASE,
		username TEXT NOT NULL,
		employee_id TEXT NOT NULL UNIQUE,
		department TEXT NOT NULL,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		email_verified INTEGER NOT NULL DEFAULT 0,
		email_verification_token TEXT NOT NULL DEFAULT '',
		is_staff INTEGER NOT NULL DEFAULT 0,
		is_manager INTEGER NOT NULL DEFAULT 0,
		is_active INTEGER NOT NULL DEFAULT 1,
		date_joined TEXT NOT NULL,
		last_login TEXT
	);
	CREATE INDEX idx_users_department ON users(department);
	CREATE TABLE token_blacklist (
		jti TEXT PRIMARY KEY,
		expires_at TEXT NOT NULL
	);
	`},
	{Version: 3, Name: "movements", SQL: `
	CREATE TABLE mouvements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		numero_bmm TEXT NOT NULL UNIQUE,
		type_mouvement TEXT NOT NULL CHECK (type_mouvement IN ('SORTIE_DEFINITIVE', 'SORTIE_PRET', 'ENTREE')),
		description_bmm TEXT NOT NULL,
		emetteur_recepteur TEXT NOT NULL,
		departement_service TEXT NOT NULL,
		date_retour_prevue TEXT,
		date_retour_effective TEXT,
		equipement_id INTEGER REFERENCES equipements(id) ON DELETE RESTRICT,
		remarque TEXT,
		statut TEXT NOT NULL DEFAULT 'BROUILLON' CHECK (statut IN ('BROUILLON', 'VALIDE', 'ANNULE')),
		created_by INTEGER NOT NULL REFERENCES users(id) ON DELETE RESTRICT,
		date_creation TEXT NOT NULL,
		validated_by INTEGER REFERENCES users(id) ON DELETE RESTRICT,
		date_validation TEXT
	);
	CREATE TABLE lignes_mouvement (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		mouvement_id INTEGER NOT NULL REFERENCES mouvements(id) ON DELETE CASCADE,
		article_id INTEGER NOT NULL REFERENCES articles(id) ON DELETE RESTRICT,
		quantite TEXT NOT NULL,
		stock_avant TEXT,
		stock_apres TEXT,
		UNIQUE (mouvement_id, article_id)
	);
	CREATE TABLE historiques_mouvement (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		mouvement_id INTEGER NOT NULL REFERENCES mouvements(id) ON DELETE CASCADE,
		type_action TEXT NOT NULL CHECK (type_action IN ('CREATION', 'VALIDATION', 'ANNULATION')),
		utilisateur_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		date_action TEXT NOT NULL,
		details TEXT
	);
	CREATE INDEX idx_mouvements_date ON mouvements(date_creation);
	CREATE INDEX idx_lignes_article ON lignes_mouvement(article_id);
	CREATE INDEX idx_historiques_mouvement ON historiques_mouvement(mouvement_id, date_action);
	`},
	{Version: 4, Name: "documents", SQL: `
	CREATE TABLE documents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		fichier TEXT NOT NULL,
		remarque TEXT,
		article_id INTEGER REFERENCES articles(id) ON DELETE CASCADE,
		equipement_id INTEGER REFERENCES equipements(id) ON DELETE CASCADE,
		uploaded_by INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		date_upload TEXT NOT NULL,
		CHECK ((article_id IS NULL) <> (equipement_id IS NULL))
	);
	CREATE INDEX idx_documents_article ON documents(article_id);
	CREATE INDEX idx_documents_equipement ON documents(equipement_id);
	`},
}
