package session

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
)

type Tier string

const (
	TierBronze   Tier = "Bronze"
	TierSilver   Tier = "Silver"
	TierGold     Tier = "Gold"
	TierPlatinum Tier = "Platinum"
)

// tier thresholds in points
const (
	silverAt   = 500
	goldAt     = 1000
	platinumAt = 2000
)

func tierFor(points int64) Tier {
	switch {
	case points >= platinumAt:
		return TierPlatinum
	case points >= goldAt:
		return TierGold
	case points >= silverAt:
		return TierSilver
	default:
		return TierBronze
	}
}

// Profile is the requester-side session record: loyalty state plus favorites.
type Profile struct {
	UserID          int64   `json:"user_id"`
	Points          int64   `json:"points"`
	Tier            Tier    `json:"tier"`
	Favorites       []int64 `json:"favorites,omitempty"`
	CompletedOrders int     `json:"completed_orders"`
}

// Profiles provides typed access to Profile records over any Store.
type Profiles struct {
	store Store
}

func NewProfiles(store Store) *Profiles { return &Profiles{store: store} }

func profileKey(userID int64) string { return "profile:" + strconv.FormatInt(userID, 10) }

func (p *Profiles) Get(ctx context.Context, userID int64) (Profile, error) {
	raw, err := p.store.Get(ctx, profileKey(userID))
	if errors.Is(err, ErrNotFound) {
		return Profile{UserID: userID, Tier: TierBronze}, nil
	}
	if err != nil {
		return Profile{}, err
	}
	var prof Profile
	if err := json.Unmarshal(raw, &prof); err != nil {
		return Profile{}, err
	}
	return prof, nil
}

func (p *Profiles) Save(ctx context.Context, prof Profile) error {
	prof.Tier = tierFor(prof.Points)
	raw, err := json.Marshal(prof)
	if err != nil {
		return err
	}
	return p.store.Put(ctx, profileKey(prof.UserID), raw)
}

// CreditCompletion adds points for one completed order and bumps the
// completed counter. Called exactly once per completion by the lifecycle.
func (p *Profiles) CreditCompletion(ctx context.Context, userID, points int64) error {
	prof, err := p.Get(ctx, userID)
	if err != nil {
		return err
	}
	prof.Points += points
	prof.CompletedOrders++
	return p.Save(ctx, prof)
}

// ToggleFavorite adds or removes a provider from the user's favorites.
func (p *Profiles) ToggleFavorite(ctx context.Context, userID, providerID int64) (Profile, error) {
	prof, err := p.Get(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	kept := prof.Favorites[:0]
	found := false
	for _, id := range prof.Favorites {
		if id == providerID {
			found = true
			continue
		}
		kept = append(kept, id)
	}
	if !found {
		kept = append(kept, providerID)
	}
	prof.Favorites = kept
	if err := p.Save(ctx, prof); err != nil {
		return Profile{}, err
	}
	return prof, nil
}
