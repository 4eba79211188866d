package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	restaurantdomain "github.com/smallbiznis/settleway/internal/restaurant/domain"
)

type createRestaurantRequest struct {
	Name                       string `json:"name"`
	Slug                       string `json:"slug"`
	ExternalID                 string `json:"external_id"`
	FreeDeliveryThresholdCents int64  `json:"free_delivery_threshold_cents"`
}

func (s *Server) CreateRestaurant(c *gin.Context) {
	var req createRestaurantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		AbortWithError(c, newValidationError("name", "invalid_name", "name is required"))
		return
	}

	restaurant := &restaurantdomain.Restaurant{
		ID:                         s.genID.Generate(),
		Name:                       strings.TrimSpace(req.Name),
		Slug:                       strings.TrimSpace(req.Slug),
		ExternalID:                 strings.TrimSpace(req.ExternalID),
		FreeDeliveryThresholdCents: req.FreeDeliveryThresholdCents,
		Active:                     true,
	}

	if err := s.restaurants.Insert(c.Request.Context(), s.db, restaurant); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": restaurant})
}

func (s *Server) GetRestaurant(c *gin.Context) {
	found, err := s.restaurants.ResolveRef(c.Request.Context(), s.db, c.Param("ref"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if found == nil {
		AbortWithError(c, restaurantdomain.ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": found})
}
