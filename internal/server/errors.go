package server

import (
	"errors"
	"net/http"
	"strings"

	ruledomain "github.com/smallbiznis/settleway/internal/commissionrule/domain"
	feedomain "github.com/smallbiznis/settleway/internal/feesettings/domain"
	orderdomain "github.com/smallbiznis/settleway/internal/order/domain"
	payoutdomain "github.com/smallbiznis/settleway/internal/payout/domain"
	pricingdomain "github.com/smallbiznis/settleway/internal/pricing/domain"
	"github.com/smallbiznis/settleway/internal/providers/pdf"
	restaurantdomain "github.com/smallbiznis/settleway/internal/restaurant/domain"
	settlementdomain "github.com/smallbiznis/settleway/internal/settlement/domain"
	"github.com/smallbiznis/settleway/pkg/db"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type conflictDetail struct {
	RuleID     string `json:"rule_id"`
	Name       string `json:"name"`
	RangeLabel string `json:"range"`
}

type errorPayload struct {
	Type           string            `json:"type"`
	Message        string            `json:"message"`
	Errors         []ValidationError `json:"errors,omitempty"`
	CandidateRange string            `json:"candidate_range,omitempty"`
	Conflicts      []conflictDetail  `json:"conflicts,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// classifyErrorForLog feeds the request logger an error taxonomy without
// re-running the full mapping.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	if oErr := asOverlapError(err); oErr != nil {
		payload := errorPayload{
			Type:           "range_overlap",
			Message:        oErr.Error(),
			CandidateRange: oErr.CandidateRange,
		}
		for _, rule := range oErr.Conflicts {
			payload.Conflicts = append(payload.Conflicts, conflictDetail{
				RuleID:     rule.ID.String(),
				Name:       rule.Name,
				RangeLabel: rule.RangeLabel(),
			})
		}
		return http.StatusConflict, payload
	}

	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, settlementdomain.ErrAlreadyFinalized):
		return http.StatusConflict, errorPayload{
			Type:    "already_finalized",
			Message: "settlement already finalized",
		}
	case errors.Is(err, settlementdomain.ErrInvalidTransition):
		return http.StatusConflict, errorPayload{
			Type:    "invalid_transition",
			Message: "invalid settlement status transition",
		}
	case db.IsDuplicateKeyErr(err):
		// Unique-constraint races (double settlement trigger, duplicate
		// restaurant slug) are retryable after re-reading state.
		return http.StatusConflict, errorPayload{
			Type:    "duplicate",
			Message: "a conflicting record already exists, retry after re-reading current state",
		}
	case errors.Is(err, ruledomain.ErrNoActiveRules):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "no_active_rules",
			Message: "no active commission rules cover the requested value",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, ruledomain.ErrLockUnavailable),
		errors.Is(err, pdf.ErrRendererUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	case errors.Is(err, settlementdomain.ErrConservation):
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "settlement breakdown failed verification",
		}
	case errors.Is(err, ErrInternal):
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func asOverlapError(err error) *ruledomain.OverlapError {
	var oErr *ruledomain.OverlapError
	if errors.As(err, &oErr) && oErr != nil {
		return oErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return true
	case isCommissionRuleValidationError(err),
		isFeeSettingsValidationError(err),
		isPricingValidationError(err),
		isPayoutValidationError(err):
		return true
	default:
		return false
	}
}

func isCommissionRuleValidationError(err error) bool {
	switch {
	case errors.Is(err, ruledomain.ErrInvalidCategory),
		errors.Is(err, ruledomain.ErrInvalidName),
		errors.Is(err, ruledomain.ErrInvalidRange),
		errors.Is(err, ruledomain.ErrInvalidRate),
		errors.Is(err, ruledomain.ErrInvalidValue),
		errors.Is(err, ruledomain.ErrInvalidID):
		return true
	default:
		return false
	}
}

func isFeeSettingsValidationError(err error) bool {
	switch {
	case errors.Is(err, feedomain.ErrInvalidFee),
		errors.Is(err, feedomain.ErrInvalidRanges),
		errors.Is(err, feedomain.ErrInvalidID):
		return true
	default:
		return false
	}
}

func isPricingValidationError(err error) bool {
	switch {
	case errors.Is(err, pricingdomain.ErrInvalidOrder),
		errors.Is(err, pricingdomain.ErrInvalidRestaurant),
		errors.Is(err, settlementdomain.ErrInvalidOrder):
		return true
	default:
		return false
	}
}

func isPayoutValidationError(err error) bool {
	switch {
	case errors.Is(err, payoutdomain.ErrInvalidParty),
		errors.Is(err, payoutdomain.ErrInvalidPeriod):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ruledomain.ErrNotFound),
		errors.Is(err, feedomain.ErrNotFound),
		errors.Is(err, orderdomain.ErrNotFound),
		errors.Is(err, restaurantdomain.ErrNotFound),
		errors.Is(err, settlementdomain.ErrOrderNotFound),
		errors.Is(err, settlementdomain.ErrSettlementNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	if errors.Is(err, ErrInvalidRequest) {
		return "invalid_request"
	}
	return err.Error()
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}
