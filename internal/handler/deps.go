package handler

import (
	"commhub/internal/app/chatstore"
	"commhub/internal/app/hub"
	"commhub/internal/app/presence"
	"commhub/internal/app/storage"
	"commhub/internal/app/ws"
	"commhub/internal/configs"
)

// AppDeps bundles the collaborators every handler constructor needs.
type AppDeps struct {
	Hub            *hub.Hub
	Registry       *presence.Registry
	Table          *ws.Table
	Store          chatstore.Store
	StorageService storage.StorageService
	Config         *configs.AppConfig
}
