package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	payoutdomain "github.com/smallbiznis/settleway/internal/payout/domain"
)

func (s *Server) ListPendingPayouts(c *gin.Context) {
	party := payoutdomain.Party(strings.TrimSpace(c.Query("party")))

	resp, err := s.payoutSvc.ListPending(c.Request.Context(), party)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type markPayoutsProcessedRequest struct {
	Party    payoutdomain.Party `json:"party"`
	PartyID  *string            `json:"party_id"`
	OrderIDs []string           `json:"order_ids"`
}

func (s *Server) MarkPayoutsProcessed(c *gin.Context) {
	var req markPayoutsProcessedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	domainReq := payoutdomain.MarkProcessedRequest{Party: req.Party}

	if req.PartyID != nil && strings.TrimSpace(*req.PartyID) != "" {
		id, err := parseSnowflake(*req.PartyID)
		if err != nil {
			AbortWithError(c, newValidationError("party_id", "invalid_party_id", "party_id must be a valid id"))
			return
		}
		domainReq.PartyID = &id
	}

	for _, raw := range req.OrderIDs {
		id, err := parseSnowflake(raw)
		if err != nil {
			AbortWithError(c, newValidationError("order_ids", "invalid_order_id", "order_ids must be valid ids"))
			return
		}
		domainReq.OrderIDs = append(domainReq.OrderIDs, id)
	}

	processed, err := s.payoutSvc.MarkProcessed(c.Request.Context(), domainReq)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"processed": processed}})
}

func (s *Server) SettlementReport(c *gin.Context) {
	req, err := reportRequestFrom(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.payoutSvc.Report(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SettlementReportPDF(c *gin.Context) {
	req, err := reportRequestFrom(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	doc, err := s.payoutSvc.ReportPDF(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="settlement-report.pdf"`)
	c.Data(http.StatusOK, "application/pdf", doc)
}

// reportRequestFrom parses from/to as RFC 3339 timestamps or plain
// dates; to defaults to now when omitted.
func reportRequestFrom(c *gin.Context) (payoutdomain.ReportRequest, error) {
	var req payoutdomain.ReportRequest

	from, err := parseReportTime(c.Query("from"))
	if err != nil || from.IsZero() {
		return req, newValidationError("from", "invalid_period", "from must be an RFC 3339 timestamp or date")
	}
	req.From = from

	if raw := strings.TrimSpace(c.Query("to")); raw != "" {
		to, err := parseReportTime(raw)
		if err != nil {
			return req, newValidationError("to", "invalid_period", "to must be an RFC 3339 timestamp or date")
		}
		req.To = to
	} else {
		req.To = time.Now().UTC()
	}

	if raw := strings.TrimSpace(c.Query("restaurant_id")); raw != "" {
		id, err := parseSnowflake(raw)
		if err != nil {
			return req, newValidationError("restaurant_id", "invalid_restaurant_id", "restaurant_id must be a valid id")
		}
		req.RestaurantID = &id
	}

	return req, nil
}

func parseReportTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}
