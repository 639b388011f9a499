package relay

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/teslashibe/go-soundmap/pkg/protocol"
)

// AppConfig controls NewApp.
type AppConfig struct {
	Version     string
	LogRequests bool
}

// NewApp builds the relay HTTP app: WebSocket routes, the /api group,
// /health and /metrics.
func NewApp(hub *Hub, cfg AppConfig) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "soundmap-relay",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type",
	}))
	if cfg.LogRequests {
		app.Use(logger.New())
	}

	hub.RegisterRoutes(app)
	hub.RegisterAPIRoutes(app.Group("/api"))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":   "ok",
			"version":  cfg.Version,
			"headsets": hub.HeadsetCount(),
		})
	})

	app.Get("/metrics", func(c *fiber.Ctx) error {
		stats := hub.GetStats()
		return c.SendString(fmt.Sprintf(`# HELP soundmap_relay_headsets Connected headset count
# TYPE soundmap_relay_headsets gauge
soundmap_relay_headsets %d

# HELP soundmap_relay_messages_received Total messages received
# TYPE soundmap_relay_messages_received counter
soundmap_relay_messages_received %d

# HELP soundmap_relay_messages_sent Total messages sent
# TYPE soundmap_relay_messages_sent counter
soundmap_relay_messages_sent %d

# HELP soundmap_relay_detections Detections published
# TYPE soundmap_relay_detections counter
soundmap_relay_detections %d

# HELP soundmap_relay_rejected Detections rejected
# TYPE soundmap_relay_rejected counter
soundmap_relay_rejected %d
`, stats.HeadsetCount, stats.MessagesReceived, stats.MessagesSent, stats.Detections, stats.Rejected))
	})

	return app
}

// RegisterAPIRoutes registers the REST API on api.
func (h *Hub) RegisterAPIRoutes(api fiber.Router) {
	// Publish a detection to all headsets
	api.Post("/detections", func(c *fiber.Ctx) error {
		var msg protocol.DetectionMsg
		if err := c.BodyParser(&msg); err != nil {
			h.rejected.Add(1)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}

		delivered, err := h.Publish(&msg)
		if err != nil {
			status := fiber.StatusInternalServerError
			if errors.Is(err, protocol.ErrNoTags) || errors.Is(err, protocol.ErrDoAOutOfRange) {
				status = fiber.StatusBadRequest
			}
			return c.Status(status).JSON(fiber.Map{"error": err.Error()})
		}

		return c.JSON(fiber.Map{"status": "sent", "delivered": delivered})
	})

	api.Get("/headsets", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"headsets": h.HeadsetInfos(),
			"count":    h.HeadsetCount(),
		})
	})

	api.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(h.GetStats())
	})
}

func decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}
	return nil
}
