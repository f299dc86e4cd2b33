package main

// Modules compiled into the default herald binary. Trim this list to
// build a smaller binary without the matching modules.
import (
	_ "github.com/heraldbot/herald/internal/console"
	_ "github.com/heraldbot/herald/internal/cron"
	_ "github.com/heraldbot/herald/internal/gateway"
	_ "github.com/heraldbot/herald/internal/heartbeat"
	_ "github.com/heraldbot/herald/internal/telemetry"
	_ "github.com/heraldbot/herald/modules/channel/telegram"
	_ "github.com/heraldbot/herald/modules/memory/redis"
	_ "github.com/heraldbot/herald/modules/memory/sqlite"
	_ "github.com/heraldbot/herald/modules/provider/anthropic"
	_ "github.com/heraldbot/herald/modules/provider/openai_compatible"
	_ "github.com/heraldbot/herald/modules/tool/mcp"
)
