package router

import (
	"github.com/adsync/backend/internal/infrastructure/auth"
	"github.com/adsync/backend/internal/interfaces/http/handler"
	"github.com/adsync/backend/internal/interfaces/http/middleware"
)

// SyncRoutes builds /sync. Reads need sync:read; anything that enqueues
// work or mutates a profile needs sync:write.
func SyncRoutes(h *handler.SyncHandler) *DomainGroup {
	read := middleware.RequireScope(auth.ScopeSyncRead)
	write := middleware.RequireScope(auth.ScopeSyncWrite)

	g := NewDomainGroup("sync", "/sync")
	g.POST("/initial", write, h.InitialSync).
		POST("/schedule", write, h.Schedule).
		POST("/manual", write, h.ManualSync).
		POST("/hourly-check", write, h.HourlyCheck).
		GET("/sessions", read, h.ListSessions).
		GET("/jobs/history", read, h.JobHistory)

	profiles := g.Group("profiles", "/profiles/:org")
	profiles.GET("", read, h.GetProfile).
		POST("/pause", write, h.PauseProfile).
		POST("/resume", write, h.ResumeProfile).
		POST("/activity", write, h.RecordActivity).
		PUT("/business-hours", write, h.ConfigureBusinessHours)

	return g
}

// SystemRoutes builds /system
func SystemRoutes(h *handler.SystemHandler) *DomainGroup {
	return NewDomainGroup("system", "/system").
		GET("/info", middleware.RequireScope(auth.ScopeSyncRead), h.GetSystemInfo)
}
