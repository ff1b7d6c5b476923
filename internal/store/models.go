package store

import "time"

// GuildConfig holds the per-guild bridge settings. A row appears the first
// time any setting for the guild is written; absent rows read as defaults.
type GuildConfig struct {
	GuildID              string    `gorm:"column:guild_id;primaryKey;size:32;not null"`
	Passworded           bool      `gorm:"column:passworded;not null;default:false"`
	IgnoreOfflineMembers bool      `gorm:"column:ignore_offline_members;not null;default:false"`
	SelectedVersion      *string   `gorm:"column:selected_version;size:190"`
	CreatedAt            time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (GuildConfig) TableName() string {
	return "guild_configs"
}

// GlobalConfig is the singleton row of bridge-wide settings. Empty strings
// mean unset.
type GlobalConfig struct {
	ID             int       `gorm:"column:id;primaryKey"`
	ClientID       string    `gorm:"column:client_id;size:190;not null;default:''"`
	ClientSecret   string    `gorm:"column:client_secret;size:190;not null;default:''"`
	StaticFilePath string    `gorm:"column:static_file_path;size:512;not null;default:''"`
	SocketURL      string    `gorm:"column:socket_url;size:512;not null;default:''"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (GlobalConfig) TableName() string {
	return "global_config"
}

// MemberCustomization stores viewer-facing overrides for one guild member.
type MemberCustomization struct {
	GuildID       string    `gorm:"column:guild_id;primaryKey;size:32;not null"`
	MemberID      string    `gorm:"column:member_id;primaryKey;size:32;not null;index"`
	RoleColor     string    `gorm:"column:role_color;size:16;not null;default:''"`
	CustomMessage string    `gorm:"column:custom_message;type:text;not null;default:''"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (MemberCustomization) TableName() string {
	return "member_customizations"
}
