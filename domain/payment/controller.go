package payment

import (
	"context"
	"errors"
	"time"

	"paygate-vip/domain/entitlement"
	"paygate-vip/infrastructure/service"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
)

const paymentDescription = "Achat VIP"

type IEngine interface {
	IReconciler
	Track(ctx context.Context, transactionId string, userId *string, params entitlement.PaymentParams) error
}

type Controller struct {
	gateway    service.IGateway
	engine     IEngine
	store      entitlement.IEntitlementStore
	dispatcher IDispatcher
	validator  *requestValidator
	now        func() time.Time
}

func NewController(
	gateway service.IGateway, engine IEngine, store entitlement.IEntitlementStore, dispatcher IDispatcher, phoneRegion string,
) *Controller {
	return &Controller{
		gateway:    gateway,
		engine:     engine,
		store:      store,
		dispatcher: dispatcher,
		validator:  newRequestValidator(phoneRegion),
		now:        time.Now,
	}
}

func (c *Controller) InitRoutes(app *fiber.App) {
	app.Get("/ping", c.ping)
	app.Post("/pay", c.pay)
	app.Post("/check-status", c.checkStatus)
	app.Post("/check-balance", c.checkBalance)
	app.Post("/callback", c.callback)
	app.Get("/entitlements/:key", c.getEntitlement)
	app.Get("/vip/:uid", c.getVip)
}

func (c *Controller) ping(ctx *fiber.Ctx) error {
	return ctx.Status(fiber.StatusOK).JSON(fiber.Map{"message": "pong"})
}

func (c *Controller) pay(ctx *fiber.Ctx) error {
	var in PayInput
	if err := json.Unmarshal(ctx.Body(), &in); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(ErrorOutput{Error: "invalid JSON body"})
	}
	in.normalize()
	if fields := c.validator.validatePay(&in); len(fields) > 0 {
		return ctx.Status(fiber.StatusBadRequest).JSON(ErrorOutput{Error: "invalid request", Fields: fields})
	}

	resp, err := c.gateway.InitiatePayment(ctx.UserContext(), service.PaymentRequest{
		PhoneNumber: in.PhoneNumber,
		Amount:      in.Amount,
		Network:     in.Network,
		Identifier:  "TX-" + uuid.NewString(),
		Description: paymentDescription,
	})
	if err != nil {
		log.Errorw("initiate payment failed", "network", in.Network, "error", err)
		return ctx.Status(fiber.StatusInternalServerError).JSON(ErrorOutput{Error: "Impossible d’initier le paiement"})
	}

	out := PayOutput{
		Success:          resp.Accepted() && resp.TxReference != "",
		TxReference:      resp.TxReference,
		PaymentReference: resp.PaymentReference,
		Raw:              resp.Raw,
	}
	if !out.Success {
		log.Warnw("payment not accepted by gateway", "txReference", resp.TxReference, "raw", string(resp.Raw))
		return ctx.Status(fiber.StatusOK).JSON(out)
	}

	params := entitlement.PaymentParams{Amount: in.Amount, PhoneNumber: in.PhoneNumber, Network: in.Network}
	err = c.engine.Track(ctx.UserContext(), resp.TxReference, optionalUid(in.Uid), params)
	if entitlement.IsIntegrityError(err) {
		return ctx.Status(fiber.StatusConflict).JSON(ErrorOutput{Error: "Transaction déjà enregistrée"})
	}
	// Other tracking failures are logged by the engine; the caller still needs tx_reference to poll.

	return ctx.Status(fiber.StatusOK).JSON(out)
}

func (c *Controller) checkStatus(ctx *fiber.Ctx) error {
	var in CheckStatusInput
	if err := json.Unmarshal(ctx.Body(), &in); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(ErrorOutput{Error: "invalid JSON body"})
	}
	in.normalize()
	if fields := c.validator.fieldErrors(&in); len(fields) > 0 {
		return ctx.Status(fiber.StatusBadRequest).JSON(ErrorOutput{Error: "invalid request", Fields: fields})
	}

	resp, err := c.gateway.QueryStatus(ctx.UserContext(), in.TxReference)
	if err != nil {
		log.Errorw("query status failed", "txReference", in.TxReference, "error", err)
		return ctx.Status(fiber.StatusInternalServerError).JSON(ErrorOutput{Error: "Impossible de vérifier le statut"})
	}

	_, err = c.engine.Reconcile(ctx.UserContext(), newPollEvent(in.TxReference, in.Uid, resp))
	if entitlement.IsIntegrityError(err) {
		return ctx.Status(fiber.StatusConflict).JSON(ErrorOutput{Error: err.Error()})
	}

	return ctx.Status(fiber.StatusOK).JSON(StatusOutput{
		Success:          resp.Confirmed(),
		PaymentReference: resp.PaymentReference,
		Raw:              resp.Raw,
	})
}

func (c *Controller) checkBalance(ctx *fiber.Ctx) error {
	raw, err := c.gateway.QueryBalance(ctx.UserContext())
	if err != nil {
		log.Errorw("query balance failed", "error", err)
		return ctx.Status(fiber.StatusInternalServerError).JSON(ErrorOutput{Error: "Impossible de consulter le solde"})
	}

	ctx.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return ctx.Status(fiber.StatusOK).Send(raw)
}

// callback acknowledges anything it could read so the gateway stops retrying; only
// integrity anomalies are reported back.
func (c *Controller) callback(ctx *fiber.Ctx) error {
	var in CallbackInput
	if err := json.Unmarshal(ctx.Body(), &in); err != nil {
		log.Warnw("unreadable callback", "error", err, "body", string(ctx.Body()))
		return ctx.Status(fiber.StatusBadRequest).JSON(ErrorOutput{Error: "invalid JSON body"})
	}

	err := c.dispatcher.Dispatch(ctx.UserContext(), newCallbackEvent(in))
	if entitlement.IsIntegrityError(err) {
		return ctx.Status(fiber.StatusConflict).JSON(ErrorOutput{Error: err.Error()})
	}

	return ctx.Status(fiber.StatusOK).JSON(fiber.Map{"message": callbackAck})
}

func (c *Controller) getEntitlement(ctx *fiber.Ctx) error {
	e, err := c.store.Get(ctx.UserContext(), ctx.Params("key"))
	if errors.Is(err, entitlement.ErrEntitlementNotFound) {
		return ctx.Status(fiber.StatusNotFound).JSON(ErrorOutput{Error: "entitlement not found"})
	}
	if err != nil {
		log.Errorw("read entitlement failed", "entitlementKey", ctx.Params("key"), "error", err)
		return ctx.SendStatus(fiber.StatusInternalServerError)
	}

	return ctx.Status(fiber.StatusOK).JSON(c.entitlementOutput(*e))
}

// getVip reports whether uid holds at least one unexpired entitlement, and until when.
func (c *Controller) getVip(ctx *fiber.Ctx) error {
	uid := ctx.Params("uid")
	owned, err := c.store.ListByOwner(ctx.UserContext(), uid)
	if err != nil {
		log.Errorw("list entitlements failed", "uid", uid, "error", err)
		return ctx.SendStatus(fiber.StatusInternalServerError)
	}

	out := VipOutput{Uid: uid}
	now := c.now()
	for _, e := range owned {
		if e.StatusAt(now) != entitlement.StatusActive {
			continue
		}
		if out.ExpiresAt == nil || e.ExpiresAt.After(*out.ExpiresAt) {
			expiresAt := e.ExpiresAt
			out.ExpiresAt = &expiresAt
		}
	}
	out.Vip = out.ExpiresAt != nil

	return ctx.Status(fiber.StatusOK).JSON(out)
}

func (c *Controller) entitlementOutput(e entitlement.Entitlement) EntitlementOutput {
	return EntitlementOutput{
		EntitlementKey:      e.EntitlementKey,
		OwnerId:             e.OwnerId,
		Status:              string(e.StatusAt(c.now())),
		GrantedAt:           e.GrantedAt,
		ExpiresAt:           e.ExpiresAt,
		SourceTransactionId: e.SourceTransactionId,
	}
}

func optionalUid(uid string) *string {
	if uid == "" {
		return nil
	}
	return &uid
}
