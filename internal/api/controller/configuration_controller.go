package controller

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/coolnight20187/python-7ty-system/internal/frontend"
)

// ConfigurationResponse tells a page what its worker understands.
type ConfigurationResponse struct {
	Frontend     string            `json:"frontend"`
	CacheVersion string            `json:"cacheVersion"`
	Categories   []string          `json:"categories"`
	SyncTags     map[string]string `json:"syncTags"`
	AllTag       string            `json:"allTag"`
	Messages     []string          `json:"messages"`
}

// ConfigurationController handles configuration-related API endpoints.
type ConfigurationController struct {
	profile  frontend.Profile
	messages []string
}

func NewConfigurationController(profile frontend.Profile, messages []string) *ConfigurationController {
	m := append([]string(nil), messages...)
	sort.Strings(m)
	return &ConfigurationController{profile: profile, messages: m}
}

// GetConfiguration handles GET /_worker/config.
func (cc *ConfigurationController) GetConfiguration(c *gin.Context) {
	opts := cc.profile.SyncOptions()
	categories := make([]string, 0, len(cc.profile.Categories))
	for _, cat := range cc.profile.Categories {
		categories = append(categories, cat.Name)
	}
	c.JSON(http.StatusOK, ConfigurationResponse{
		Frontend:     cc.profile.Name,
		CacheVersion: cc.profile.CacheVersion,
		Categories:   categories,
		SyncTags:     opts.Tags,
		AllTag:       opts.AllTag,
		Messages:     cc.messages,
	})
}
