package profile

import "time"

// Profile is the auxiliary record kept in the managed Postgres next to the
// FitGram API's own user record.
type Profile struct {
	UserID        string    `json:"userId"`
	DisplayName   string    `json:"displayName"`
	Bio           string    `json:"bio"`
	AvatarURL     string    `json:"avatarUrl"`
	HeightCm      float64   `json:"heightCm"`
	WeightKg      float64   `json:"weightKg"`
	Gender        string    `json:"gender"`
	DateOfBirth   string    `json:"dateOfBirth"`
	Goal          string    `json:"goal"`
	ActivityLevel string    `json:"activityLevel"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Patch updates only the non-nil fields.
type Patch struct {
	DisplayName   *string  `json:"displayName"`
	Bio           *string  `json:"bio"`
	AvatarURL     *string  `json:"avatarUrl"`
	HeightCm      *float64 `json:"heightCm"`
	WeightKg      *float64 `json:"weightKg"`
	Goal          *string  `json:"goal"`
	ActivityLevel *string  `json:"activityLevel"`
}

func (p Patch) Empty() bool {
	return p.DisplayName == nil && p.Bio == nil && p.AvatarURL == nil &&
		p.HeightCm == nil && p.WeightKg == nil && p.Goal == nil && p.ActivityLevel == nil
}
