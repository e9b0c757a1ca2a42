package models

// SearchRequest is the filter set accepted by POST /api/search.
type SearchRequest struct {
	GameType     string `json:"gameType,omitempty" validate:"omitempty,oneof=clan ranked random other pvp"`
	MapID        string `json:"mapId,omitempty"`
	AllyClanTag  string `json:"allyClanTag,omitempty"`
	EnemyClanTag string `json:"enemyClanTag,omitempty"`

	ShipName     string `json:"shipName,omitempty"`
	ShipTeam     string `json:"shipTeam,omitempty" validate:"omitempty,oneof=ally enemy"`
	ShipMinCount int    `json:"shipMinCount,omitempty" validate:"omitempty,min=1"`

	PlayerName string `json:"playerName,omitempty"`
	ClanTag    string `json:"clanTag,omitempty"`

	WinLoss  string `json:"winLoss,omitempty" validate:"omitempty,oneof=win loss draw unknown"`
	DateFrom int64  `json:"dateFrom,omitempty"`
	DateTo   int64  `json:"dateTo,omitempty"`

	CursorUnixTime int64 `json:"cursorUnixTime,omitempty"`
	Limit          int   `json:"limit,omitempty" validate:"omitempty,min=1,max=100"`
}

// SearchResponse is the paginated search result.
type SearchResponse struct {
	Items          []MatchRecord `json:"items"`
	Count          int           `json:"count"`
	CursorUnixTime int64         `json:"cursorUnixTime,omitempty"`
	HasMore        bool          `json:"hasMore"`
}

// MatchDetail joins MATCH, STATS and all UPLOAD records for one arenaUniqueID.
type MatchDetail struct {
	Match   *MatchRecord   `json:"match"`
	Stats   *StatsRecord   `json:"stats,omitempty"`
	Uploads []UploadRecord `json:"uploads"`

	MP4URL     string `json:"mp4Url,omitempty"`
	DualMP4URL string `json:"dualMp4Url,omitempty"`
}

// UploadResponse is returned by POST /api/upload before decoding completes.
type UploadResponse struct {
	Status      string `json:"status"`
	UploadKey   string `json:"uploadKey"`
	TempArenaID string `json:"tempArenaID"`
}

// GenerateVideoRequest asks for an on-demand render of a match video.
type GenerateVideoRequest struct {
	ArenaUniqueID string `json:"arenaUniqueID" validate:"required"`
	PlayerID      int64  `json:"playerID" validate:"required"`
}
