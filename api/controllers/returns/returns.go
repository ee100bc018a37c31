package returns

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/returns-engine/api/middleware"
	"github.com/angelmondragon/returns-engine/api/responses"
	"github.com/angelmondragon/returns-engine/api/validators"
	internalreturns "github.com/angelmondragon/returns-engine/internal/returns"
	"github.com/angelmondragon/returns-engine/internal/shipping"
	pkgerrors "github.com/angelmondragon/returns-engine/pkg/errors"
	"github.com/angelmondragon/returns-engine/pkg/logger"
	"github.com/angelmondragon/returns-engine/pkg/types"
)

type decideRequest struct {
	Decision  string                         `json:"decision" validate:"required,oneof=approve reject"`
	Approvals []internalreturns.ItemApproval `json:"approvals" validate:"dive"`
	Note      *string                        `json:"note"`
}

type inspectionRequest struct {
	Decision string  `json:"decision" validate:"required,oneof=approve reject"`
	Notes    *string `json:"notes"`
}

type bookPickupRequest struct {
	PickupAddress types.Address `json:"pickup_address" validate:"required"`
}

type issueRefundRequest struct {
	WalletRequested bool `json:"wallet_requested"`
}

// Detail returns the full return record with its refund, when one exists.
func Detail(svc *internalreturns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		returnID, err := parseReturnID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Get(r.Context(), returnID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// Decide resolves a return under review into approved or rejected.
func Decide(svc *internalreturns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		returnID, err := parseReturnID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body decideRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Decide(r.Context(), internalreturns.DecideInput{
			ReturnID:  returnID,
			Decision:  internalreturns.Decision(body.Decision),
			Approvals: body.Approvals,
			Note:      body.Note,
			Actor:     actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// BookPickup books a shipping-partner pickup for an approved return.
func BookPickup(orch *shipping.Orchestrator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		returnID, err := parseReturnID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body bookPickupRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := orch.BookPickup(r.Context(), shipping.BookPickupInput{
			ReturnID:      returnID,
			PickupAddress: body.PickupAddress,
			Actor:         actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if result.Idempotent {
			responses.WriteSuccess(w, result)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// ReschedulePickup books a replacement pickup. Pass ?force=true to replace a
// pickup that is already scheduled.
func ReschedulePickup(orch *shipping.Orchestrator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		returnID, err := parseReturnID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body bookPickupRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := orch.Reschedule(r.Context(), shipping.RescheduleInput{
			ReturnID:      returnID,
			PickupAddress: body.PickupAddress,
			Force:         validators.ParseQueryBool(r, "force"),
			Actor:         actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// ConfirmReceipt records the seller's confirmation that the parcel arrived.
func ConfirmReceipt(svc *internalreturns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		returnID, err := parseReturnID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ConfirmSellerReceipt(r.Context(), internalreturns.ConfirmReceiptInput{
			ReturnID: returnID,
			Actor:    actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// RecordInspection records the seller's post-receipt inspection verdict.
func RecordInspection(svc *internalreturns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		returnID, err := parseReturnID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body inspectionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.RecordInspection(r.Context(), internalreturns.InspectionInput{
			ReturnID: returnID,
			Decision: internalreturns.Decision(body.Decision),
			Notes:    body.Notes,
			Actor:    actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// IssueRefund computes and queues the refund for an inspection-approved
// return. Calling it again for the same return replays the original result.
func IssueRefund(svc *internalreturns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		returnID, err := parseReturnID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body issueRefundRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		result, err := svc.IssueRefund(r.Context(), internalreturns.IssueRefundInput{
			ReturnID:        returnID,
			WalletRequested: body.WalletRequested,
			Actor:           actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if result.Idempotent {
			responses.WriteSuccess(w, result)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// CompleteRefund marks a queued refund as settled with the payment provider.
func CompleteRefund(svc *internalreturns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		returnID, err := parseReturnID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CompleteRefund(r.Context(), internalreturns.CompleteRefundInput{
			ReturnID: returnID,
			Actor:    actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func parseReturnID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "returnId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "return id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid return id")
	}
	return id, nil
}

func actorFromRequest(r *http.Request) (internalreturns.Actor, error) {
	role, ok := middleware.ActorRoleFromContext(r.Context())
	if !ok {
		return internalreturns.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor missing")
	}
	userID, ok := middleware.ActorIDFromContext(r.Context())
	if !ok {
		return internalreturns.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor missing")
	}
	return internalreturns.Actor{Role: role, UserID: userID}, nil
}
