package services

import "go.opentelemetry.io/otel"

var tracer = otel.Tracer("lootbox-backend/internal/services")
