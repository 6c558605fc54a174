package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/example/campuspoints/internal/config"
	"github.com/example/campuspoints/internal/database"
	"github.com/example/campuspoints/internal/handlers"
	"github.com/example/campuspoints/internal/middleware"
	"github.com/example/campuspoints/internal/routes"
)

func main() {
	cfg := config.Load()
	db := database.Connect(cfg.Database.DSN())

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ErrorHandler: handlers.ErrorHandler,
		BodyLimit:    cfg.Upload.MaxSize + 1<<20,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSAllowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
	app.Use(middleware.Metrics())

	routes.Register(app, db, cfg)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		_ = app.Shutdown()
	}()

	log.Printf("Starting server on :%s", cfg.App.Port)
	if err := app.Listen(":" + cfg.App.Port); err != nil {
		log.Fatalf("fiber.Listen error: %v", err)
	}
}
