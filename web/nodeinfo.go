package web

import (
	"net/http"

	"github.com/deemkeen/quill/util"
	"github.com/gin-gonic/gin"
)

const nodeInfoSchema = "http://nodeinfo.diaspora.software/ns/schema/2.0"

func (s *Server) handleNodeInfoLinks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"links": []gin.H{{
			"rel":  nodeInfoSchema,
			"href": "https://" + s.conf.Domain() + "/nodeinfo/2.0",
		}},
	})
}

// handleNodeInfo reports software and usage counts to crawlers.
func (s *Server) handleNodeInfo(c *gin.Context) {
	stats, err := s.db.Stats(c.Request.Context())
	if err != nil {
		s.notFound(c, err)
		return
	}

	protocols := []string{}
	if s.conf.Conf.WithAp {
		protocols = append(protocols, "activitypub")
	}
	c.Header("Content-Type", `application/json; profile="`+nodeInfoSchema+`#"`)
	c.JSON(http.StatusOK, gin.H{
		"version": "2.0",
		"software": gin.H{
			"name":    util.Name,
			"version": util.GetVersion(),
		},
		"protocols": protocols,
		"services": gin.H{
			"inbound":  []string{},
			"outbound": []string{"atom1.0", "rss2.0"},
		},
		"openRegistrations": !s.conf.Conf.Closed && !s.conf.Conf.Single,
		"usage": gin.H{
			"users": gin.H{
				"total": stats.LocalUsers,
			},
		},
		"metadata": gin.H{},
	})
}
