package profile

import (
	"context"
	"errors"
	"fmt"

	"fitgram/internal/db"

	"github.com/jackc/pgx/v5"
)

var (
	ErrNotFound = errors.New("profile not found")
	ErrDisabled = errors.New("profile store not configured")
)

const profileColumns = `user_id, display_name, bio, avatar_url, height_cm, weight_kg, gender, date_of_birth, goal, activity_level, updated_at`

type Store struct {
	db db.Querier
}

func NewStore(q db.Querier) *Store {
	return &Store{db: q}
}

func (s *Store) Enabled() bool {
	return s != nil && s.db != nil
}

func (s *Store) Get(ctx context.Context, userID string) (Profile, error) {
	if !s.Enabled() {
		return Profile{}, ErrDisabled
	}
	row := s.db.QueryRow(ctx, `
		SELECT `+profileColumns+`
		FROM profiles WHERE user_id = $1
	`, userID)
	p, err := scanProfile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("select profile: %w", err)
	}
	return p, nil
}

func (s *Store) Upsert(ctx context.Context, p Profile) (Profile, error) {
	if !s.Enabled() {
		return Profile{}, ErrDisabled
	}
	if p.UserID == "" {
		return Profile{}, errors.New("user_id required")
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO profiles (user_id, display_name, bio, avatar_url, height_cm, weight_kg, gender, date_of_birth, goal, activity_level, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10, now())
		ON CONFLICT (user_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			bio = EXCLUDED.bio,
			avatar_url = EXCLUDED.avatar_url,
			height_cm = EXCLUDED.height_cm,
			weight_kg = EXCLUDED.weight_kg,
			gender = EXCLUDED.gender,
			date_of_birth = EXCLUDED.date_of_birth,
			goal = EXCLUDED.goal,
			activity_level = EXCLUDED.activity_level,
			updated_at = now()
		RETURNING updated_at
	`, p.UserID, p.DisplayName, p.Bio, p.AvatarURL, p.HeightCm, p.WeightKg, p.Gender, p.DateOfBirth, p.Goal, p.ActivityLevel)
	if err := row.Scan(&p.UpdatedAt); err != nil {
		return Profile{}, fmt.Errorf("upsert profile: %w", err)
	}
	return p, nil
}

func (s *Store) Update(ctx context.Context, userID string, patch Patch) (Profile, error) {
	if !s.Enabled() {
		return Profile{}, ErrDisabled
	}
	if patch.Empty() {
		return s.Get(ctx, userID)
	}
	row := s.db.QueryRow(ctx, `
		UPDATE profiles SET
			display_name = COALESCE($2, display_name),
			bio = COALESCE($3, bio),
			avatar_url = COALESCE($4, avatar_url),
			height_cm = COALESCE($5, height_cm),
			weight_kg = COALESCE($6, weight_kg),
			goal = COALESCE($7, goal),
			activity_level = COALESCE($8, activity_level),
			updated_at = now()
		WHERE user_id = $1
		RETURNING `+profileColumns,
		userID, patch.DisplayName, patch.Bio, patch.AvatarURL, patch.HeightCm, patch.WeightKg, patch.Goal, patch.ActivityLevel)
	p, err := scanProfile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("update profile: %w", err)
	}
	return p, nil
}

func scanProfile(row pgx.Row) (Profile, error) {
	var p Profile
	err := row.Scan(&p.UserID, &p.DisplayName, &p.Bio, &p.AvatarURL, &p.HeightCm, &p.WeightKg,
		&p.Gender, &p.DateOfBirth, &p.Goal, &p.ActivityLevel, &p.UpdatedAt)
	return p, err
}
