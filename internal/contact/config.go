package contact

import "time"

// Config holds contact exchange settings.
type Config struct {
	MasterKey        string        `env:"CONTACT_MASTER_KEY,required"`
	RequestTTL       time.Duration `env:"CONTACT_REQUEST_TTL" envDefault:"72h"`
	KeyGracePeriod   time.Duration `env:"CONTACT_KEY_GRACE_PERIOD" envDefault:"720h"`
	CleanupSchedule  string        `env:"CONTACT_CLEANUP_SCHEDULE" envDefault:"every 15m"`
	RotationSchedule string        `env:"CONTACT_KEY_ROTATION_SCHEDULE" envDefault:"daily at 03:00"`
	BatchSize        int           `env:"CONTACT_BATCH_SIZE" envDefault:"100"`
}
