package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/freeeve/dirty-laundry/internal/model"
)

// ResultRepo archives the outcome of every finished game.
type ResultRepo struct {
	db *sql.DB
}

// NewResultRepo creates a ResultRepo.
func NewResultRepo(db *sql.DB) *ResultRepo {
	return &ResultRepo{db: db}
}

// Save inserts a finished game. Saving the same session and game number
// twice keeps the first row.
func (r *ResultRepo) Save(ctx context.Context, res *model.GameResult) error {
	tally, err := json.Marshal(res.RoundTally)
	if err != nil {
		return fmt.Errorf("marshal round tally: %w", err)
	}
	err = r.db.QueryRowContext(ctx,
		`INSERT INTO game_results (session_code, game_number, scenario_id, murderer_id, murderer_name,
		     chosen_weapon, suspect_plurality, weapon_plurality, caught, round_tally, player_count, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (session_code, game_number) DO UPDATE SET session_code = EXCLUDED.session_code
		 RETURNING id`,
		res.SessionCode, res.GameNumber, res.ScenarioID, res.MurdererID, res.MurdererName,
		res.ChosenWeapon, res.SuspectPlurality, res.WeaponPlurality, res.Caught, tally,
		res.PlayerCount, res.FinishedAt,
	).Scan(&res.ID)
	if err != nil {
		return fmt.Errorf("save game result: %w", err)
	}
	return nil
}

// ListBySession returns the finished games of a session, oldest first.
func (r *ResultRepo) ListBySession(ctx context.Context, code string) ([]model.GameResult, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_code, game_number, scenario_id, murderer_id, murderer_name, chosen_weapon,
		        suspect_plurality, weapon_plurality, caught, round_tally, player_count, finished_at
		 FROM game_results
		 WHERE session_code = $1
		 ORDER BY game_number`, code,
	)
	if err != nil {
		return nil, fmt.Errorf("list game results: %w", err)
	}
	defer rows.Close()

	var results []model.GameResult
	for rows.Next() {
		var res model.GameResult
		var tally []byte
		if err := rows.Scan(&res.ID, &res.SessionCode, &res.GameNumber, &res.ScenarioID, &res.MurdererID,
			&res.MurdererName, &res.ChosenWeapon, &res.SuspectPlurality, &res.WeaponPlurality, &res.Caught,
			&tally, &res.PlayerCount, &res.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan game result: %w", err)
		}
		if err := json.Unmarshal(tally, &res.RoundTally); err != nil {
			return nil, fmt.Errorf("decode round tally: %w", err)
		}
		results = append(results, res)
	}
	return results, rows.Err()
}
