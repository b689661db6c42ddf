package deps

import (
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/clusterview/internal/capacity"
	"github.com/MrSnakeDoc/clusterview/internal/filesystems"
	"github.com/MrSnakeDoc/clusterview/internal/gateway"
	"github.com/MrSnakeDoc/clusterview/internal/index"
	"github.com/MrSnakeDoc/clusterview/internal/logger"
	"github.com/MrSnakeDoc/clusterview/internal/notify"
	redisstore "github.com/MrSnakeDoc/clusterview/internal/store/redis"
	"github.com/MrSnakeDoc/clusterview/internal/subsystems"
	"github.com/MrSnakeDoc/clusterview/internal/tasks"
)

type Deps struct {
	Logger                 logger.Logger
	StartTime              time.Time
	Version                string
	Commit                 string
	BuildDate              string
	GoVersion              string
	TimeNow                func() time.Time        // for testing, defaults to time.Now
	AllowedHosts           []string                // Host headers allowed to access the server
	AllowedCIDRS           []string                // IPs allowed to access operational endpoints
	TrustProxy             bool                    // true if running behind a trusted reverse proxy (e.g., cloudflared)
	CORSOrigins            []string                // Origins allowed by CORS, empty disables CORS headers
	MutationRPS            int                     // Per-IP mutation requests per second, 0 disables limiting
	FetchTimeout           time.Duration           // Upper bound of a request-driven fetch
	APIURL                 string                  // Management API base URL, empty in inventory mode
	PrometheusURL          string                  // Empty when the capacity card is disabled
	RedisClient            *redis.Client           // nil when redis is disabled
	Store                  *redisstore.Store       // nil when redis is disabled
	MemoryIndex            *index.MemoryIndex      // Last refreshed views
	Gateways               *gateway.Registry       // Gateway node aggregators
	Capacity               *capacity.Aggregator    // nil when no prometheus is configured
	Filesystems            *filesystems.Aggregator // nil when the cluster API has no cephfs
	Subsystems             *subsystems.Aggregator  // nil when the cluster API has no nvmeof
	Tasks                  *tasks.Tracker
	Notifications          *notify.Center
	ReloadTrigger          chan struct{} // Channel to trigger a manual view refresh
	InventoryReloadTrigger chan struct{} // Channel to trigger an inventory reload (nil without inventory file)
	SourceName             string        // "cluster-api" or "inventory"
}
