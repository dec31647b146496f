package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/vipul43/saas-bridge/internal/workspace"
)

type LicenseLister interface {
	ListLicenses(ctx context.Context) ([]workspace.LicenseAssignment, error)
}

type WorkspaceAPI struct {
	licenses LicenseLister
}

// NewWorkspaceAPI accepts a nil lister when Workspace is not configured.
func NewWorkspaceAPI(licenses LicenseLister) *WorkspaceAPI {
	return &WorkspaceAPI{licenses: licenses}
}

func (a *WorkspaceAPI) RegisterRoutes(r gin.IRouter) {
	r.GET("/api/workspace/licenses", a.LicensesHandler)
}

func (a *WorkspaceAPI) LicensesHandler(c *gin.Context) {
	if a.licenses == nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "google workspace is not configured"})
		return
	}

	licenses, err := a.licenses.ListLicenses(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list Workspace licenses")
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "failed to list licenses"})
		return
	}
	if licenses == nil {
		licenses = []workspace.LicenseAssignment{}
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  fmt.Sprintf("%d license assignment(s)", len(licenses)),
		"licenses": licenses,
	})
}
