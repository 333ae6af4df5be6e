package handler

import (
	"wetalk/internal/app/account"
	"wetalk/internal/app/chat"
	"wetalk/internal/configs"
)

// AppDeps bundles the shared components the handlers operate on.
type AppDeps struct {
	Config   *configs.AppConfig
	Router   *chat.Router
	Accounts account.Store
}
