package curseforge

import "encoding/json"

// Version is one entry of /api/game/versions.
type Version struct {
	ID                uint64 `json:"id"`
	GameVersionTypeID uint64 `json:"gameVersionTypeID"`
	Name              string `json:"name"`
	Slug              string `json:"slug"`
}

// UnmarshalJSON accepts the type reference as either gameVersionTypeID or
// game_version_type_id.
func (v *Version) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID                uint64  `json:"id"`
		GameVersionTypeID *uint64 `json:"gameVersionTypeID"`
		SnakeTypeID       *uint64 `json:"game_version_type_id"`
		Name              string  `json:"name"`
		Slug              string  `json:"slug"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = Version{ID: raw.ID, Name: raw.Name, Slug: raw.Slug}
	switch {
	case raw.GameVersionTypeID != nil:
		v.GameVersionTypeID = *raw.GameVersionTypeID
	case raw.SnakeTypeID != nil:
		v.GameVersionTypeID = *raw.SnakeTypeID
	}
	return nil
}

// VersionType is one entry of /api/game/version-types.
type VersionType struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}
