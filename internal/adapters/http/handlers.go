package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prajyot7070/MetaSpace/internal/app"
)

// Read-only operational listings: current space occupancy and live
// proximity groups (this process's view).
func listSpaces(orch *app.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"spaces": orch.Spaces.List()})
	}
}

func listGroups(orch *app.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"groups": orch.Groups.List()})
	}
}
