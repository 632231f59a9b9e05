// Package gateway exposes the UserManager contract as a JSON HTTP API.
package gateway

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/google/uuid"
	"github.com/mulgadc/usermgr/usermgr/awserrors"
	"github.com/mulgadc/usermgr/usermgr/config"
	"github.com/mulgadc/usermgr/usermgr/factory"
	"github.com/mulgadc/usermgr/usermgr/manager"
)

const requestIDHeader = "x-request-id"

type GatewayConfig struct {
	Debug          bool
	DisableLogging bool
	Token          string            // Bearer token required on every request when set
	Registry       *factory.Registry // Resolves the backend selected by Config
	Config         *config.Config
}

type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

type addUserBody struct {
	Username   string            `json:"username"`
	Password   string            `json:"password"`
	Attributes map[string]string `json:"attributes"`
}

type attributesBody struct {
	Attributes map[string]string `json:"attributes"`
}

type passwordBody struct {
	Password  string `json:"password"`
	Permanent bool   `json:"permanent"`
}

type addGroupBody struct {
	Groupname   string `json:"groupname"`
	Description string `json:"description"`
}

func (gw *GatewayConfig) SetupRoutes() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: gw.DisableLogging,
		// Usernames are often email addresses sent percent-encoded.
		UnescapePath: true,
		ErrorHandler: func(ctx *fiber.Ctx, err error) error {
			return gw.ErrorHandler(ctx, err)
		},
	})

	app.Use(requestID)
	if !gw.DisableLogging {
		app.Use(logger.New())
	}
	app.Use(gw.authMiddleware)

	users := app.Group("/users")
	users.Post("/", gw.addUser)
	users.Get("/", gw.listPoolUsers)
	users.Get("/:username", gw.getUser)
	users.Put("/:username/attributes", gw.updateUser)
	users.Put("/:username/password", gw.setPassword)
	users.Delete("/:username", gw.deleteUser)
	users.Get("/:username/exists", gw.isExistUser)

	groups := app.Group("/groups")
	groups.Post("/", gw.addGroup)
	groups.Delete("/:groupname", gw.deleteGroup)
	groups.Put("/:groupname/users/:username", gw.addUserToGroup)
	groups.Get("/:groupname/users", gw.listUsers)

	return app
}

func requestID(ctx *fiber.Ctx) error {
	id := ctx.Get(requestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	ctx.Locals("requestID", id)
	ctx.Set(requestIDHeader, id)
	return ctx.Next()
}

func (gw *GatewayConfig) authMiddleware(ctx *fiber.Ctx) error {
	if gw.Token == "" {
		return ctx.Next()
	}

	token, ok := strings.CutPrefix(ctx.Get(fiber.HeaderAuthorization), "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(gw.Token)) != 1 {
		return awserrors.InvalidRequest("gateway.auth", awserrors.ErrorUnauthorizedGateway, "missing or invalid bearer token")
	}
	return ctx.Next()
}

// ErrorHandler renders err as JSON with the status from the error lookup.
func (gw *GatewayConfig) ErrorHandler(ctx *fiber.Ctx, err error) error {
	requestID, _ := ctx.Locals("requestID").(string)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		return ctx.Status(fe.Code).JSON(ErrorResponse{
			Code:      strings.ReplaceAll(http.StatusText(fe.Code), " ", ""),
			Message:   fe.Message,
			RequestID: requestID,
		})
	}

	code, msg := awserrors.Lookup(err)
	if msg.HTTPCode == 0 {
		msg.HTTPCode = fiber.StatusInternalServerError
	}

	if msg.HTTPCode >= 500 {
		slog.Error("Request failed", "path", ctx.Path(), "code", code, "err", err, "requestId", requestID)
	} else {
		slog.Debug("Request rejected", "path", ctx.Path(), "code", code, "err", err, "requestId", requestID)
	}

	message := msg.Message
	if gw.Debug {
		message = err.Error()
	}

	return ctx.Status(msg.HTTPCode).JSON(ErrorResponse{
		Code:      code,
		Message:   message,
		RequestID: requestID,
	})
}

func (gw *GatewayConfig) backend() (manager.UserManager, error) {
	if gw.Registry == nil || gw.Config == nil {
		return nil, awserrors.Configuration("gateway.backend", "gateway has no backend registry")
	}
	return gw.Registry.FromConfig(gw.Config)
}

// directory returns the backend as a manager.Directory when it can read
// user records directly.
func (gw *GatewayConfig) directory(op string) (manager.Directory, error) {
	um, err := gw.backend()
	if err != nil {
		return nil, err
	}
	dir, ok := um.(manager.Directory)
	if !ok {
		return nil, awserrors.NewError(awserrors.ErrConfiguration, op, awserrors.ErrorUnsupportedOperation, "backend cannot read user records")
	}
	return dir, nil
}

func validation(op, detail string) error {
	return awserrors.InvalidRequest(op, awserrors.ErrorValidation, "%s", detail)
}

func parseBody(ctx *fiber.Ctx, op string, out any) error {
	if err := ctx.BodyParser(out); err != nil {
		return validation(op, "invalid request body: "+err.Error())
	}
	return nil
}

func (gw *GatewayConfig) addUser(ctx *fiber.Ctx) error {
	const op = "gateway.AddUser"

	var body addUserBody
	if err := parseBody(ctx, op, &body); err != nil {
		return err
	}
	if body.Username == "" || body.Password == "" {
		return validation(op, "username and password are required")
	}

	um, err := gw.backend()
	if err != nil {
		return err
	}
	sub, err := um.AddUser(ctx.UserContext(), body.Username, body.Password, body.Attributes)
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(fiber.Map{"username": body.Username, "sub": sub})
}

func (gw *GatewayConfig) updateUser(ctx *fiber.Ctx) error {
	const op = "gateway.UpdateUser"

	var body attributesBody
	if err := parseBody(ctx, op, &body); err != nil {
		return err
	}
	if len(body.Attributes) == 0 {
		return validation(op, "attributes are required")
	}

	um, err := gw.backend()
	if err != nil {
		return err
	}
	if err := um.UpdateUser(ctx.UserContext(), ctx.Params("username"), body.Attributes); err != nil {
		return err
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

func (gw *GatewayConfig) setPassword(ctx *fiber.Ctx) error {
	const op = "gateway.SetPassword"

	var body passwordBody
	if err := parseBody(ctx, op, &body); err != nil {
		return err
	}
	if body.Password == "" {
		return validation(op, "password is required")
	}

	um, err := gw.backend()
	if err != nil {
		return err
	}
	if err := um.SetPassword(ctx.UserContext(), ctx.Params("username"), body.Password, body.Permanent); err != nil {
		return err
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

func (gw *GatewayConfig) deleteUser(ctx *fiber.Ctx) error {
	um, err := gw.backend()
	if err != nil {
		return err
	}
	if err := um.DeleteUser(ctx.UserContext(), ctx.Params("username")); err != nil {
		return err
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

func (gw *GatewayConfig) isExistUser(ctx *fiber.Ctx) error {
	um, err := gw.backend()
	if err != nil {
		return err
	}
	exists, err := um.IsExistUser(ctx.UserContext(), ctx.Params("username"))
	if err != nil {
		return err
	}
	return ctx.JSON(fiber.Map{"exists": exists})
}

func (gw *GatewayConfig) addGroup(ctx *fiber.Ctx) error {
	const op = "gateway.AddGroup"

	var body addGroupBody
	if err := parseBody(ctx, op, &body); err != nil {
		return err
	}
	if body.Groupname == "" {
		return validation(op, "groupname is required")
	}

	um, err := gw.backend()
	if err != nil {
		return err
	}
	if err := um.AddGroup(ctx.UserContext(), body.Groupname, body.Description); err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(fiber.Map{"groupname": body.Groupname})
}

func (gw *GatewayConfig) deleteGroup(ctx *fiber.Ctx) error {
	um, err := gw.backend()
	if err != nil {
		return err
	}
	if err := um.DeleteGroup(ctx.UserContext(), ctx.Params("groupname")); err != nil {
		return err
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

func (gw *GatewayConfig) addUserToGroup(ctx *fiber.Ctx) error {
	um, err := gw.backend()
	if err != nil {
		return err
	}
	if err := um.AddUserToGroup(ctx.UserContext(), ctx.Params("username"), ctx.Params("groupname")); err != nil {
		return err
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

func (gw *GatewayConfig) listUsers(ctx *fiber.Ctx) error {
	limit := ctx.QueryInt("limit", 0)
	if limit < 0 {
		return validation("gateway.ListUsers", "limit must not be negative")
	}

	um, err := gw.backend()
	if err != nil {
		return err
	}
	page, err := um.ListUsers(ctx.UserContext(), ctx.Params("groupname"), int64(limit), ctx.Query("next_token"))
	if err != nil {
		return err
	}
	return ctx.JSON(page)
}

func (gw *GatewayConfig) getUser(ctx *fiber.Ctx) error {
	dir, err := gw.directory("gateway.GetUser")
	if err != nil {
		return err
	}
	user, err := dir.GetUser(ctx.UserContext(), ctx.Params("username"))
	if err != nil {
		return err
	}
	return ctx.JSON(user)
}

func (gw *GatewayConfig) listPoolUsers(ctx *fiber.Ctx) error {
	limit := ctx.QueryInt("limit", 0)
	if limit < 0 {
		return validation("gateway.ListPoolUsers", "limit must not be negative")
	}

	dir, err := gw.directory("gateway.ListPoolUsers")
	if err != nil {
		return err
	}
	page, err := dir.ListPoolUsers(ctx.UserContext(), int64(limit), ctx.Query("next_token"))
	if err != nil {
		return err
	}
	return ctx.JSON(page)
}
