package config

import "time"

const (
	StorageMongo  = "mongo"
	StorageMemory = "memory"
)

// AppConfig 进程配置，环境变量 PPCHAT_* 覆盖默认值
type AppConfig struct {
	NodeID    string `env:"PPCHAT_NODE_ID" envDefault:"gateway_01"`  // 节点ID，写入 presence
	SnowNode  int64  `env:"PPCHAT_SNOW_NODE" envDefault:"100"`       // 雪花节点号
	Port      int    `env:"PPCHAT_HTTP_PORT" envDefault:"8080"`      // http/ws 端口
	GrpcPort  int    `env:"PPCHAT_GRPC_PORT" envDefault:"50052"`     // gRPC health
	LogLevel  string `env:"PPCHAT_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"PPCHAT_LOG_FORMAT" envDefault:"console"` // console | json

	InternalKey    string   `env:"PPCHAT_INTERNAL_KEY"` // 内部接口密钥，为空则内部接口全部拒绝
	AllowedOrigins []string `env:"PPCHAT_ALLOWED_ORIGINS" envSeparator:","`

	Storage string `env:"PPCHAT_STORAGE" envDefault:"mongo"` // mongo | memory

	JWT   JWTConfig   `envPrefix:"PPCHAT_JWT_"`
	WS    WSConfig    `envPrefix:"PPCHAT_WS_"`
	Mongo MongoConfig `envPrefix:"PPCHAT_MONGO_"`
	Redis RedisConfig `envPrefix:"PPCHAT_REDIS_"`
	Nats  NatsConfig  `envPrefix:"PPCHAT_NATS_"`
	Kafka KafkaConfig `envPrefix:"PPCHAT_KAFKA_"`
}

type JWTConfig struct {
	Secret string `env:"SECRET"`
	Alg    string `env:"ALG" envDefault:"HS256"`
}

type WSConfig struct {
	HandshakeTimeout time.Duration `env:"HANDSHAKE_TIMEOUT" envDefault:"10s"`
	FrameTimeout     time.Duration `env:"FRAME_TIMEOUT" envDefault:"5s"`
	PingInterval     time.Duration `env:"PING_INTERVAL" envDefault:"25s"`
	WriteWait        time.Duration `env:"WRITE_WAIT" envDefault:"10s"`
	SendQueue        int           `env:"SEND_QUEUE" envDefault:"256"`
	ReadLimit        int64         `env:"READ_LIMIT" envDefault:"65536"`
}

type MongoConfig struct {
	Uri         string   `env:"URI"`
	Address     []string `env:"ADDRESS" envSeparator:","`
	Database    string   `env:"DATABASE" envDefault:"ppchat"`
	Username    string   `env:"USERNAME"`
	Password    string   `env:"PASSWORD"`
	AuthSource  string   `env:"AUTH_SOURCE"`
	MaxPoolSize int      `env:"MAX_POOL_SIZE" envDefault:"20"`
	MaxRetry    int      `env:"MAX_RETRY" envDefault:"3"`
}

// RedisConfig Addr 为空时不启用 presence 镜像
type RedisConfig struct {
	Addr        string        `env:"ADDR"`
	Password    string        `env:"PASSWORD"`
	DB          int           `env:"DB" envDefault:"0"`
	PoolSize    int           `env:"POOL_SIZE" envDefault:"20"`
	PresenceTTL time.Duration `env:"PRESENCE_TTL" envDefault:"90s"`
}

// NatsConfig Servers 为空时不启用事件
type NatsConfig struct {
	Servers  []string      `env:"SERVERS" envSeparator:","`
	Name     string        `env:"NAME" envDefault:"ppchat-gateway"`
	User     string        `env:"USER"`
	Password string        `env:"PASSWORD"`
	Token    string        `env:"TOKEN"`
	Mode     string        `env:"MODE" envDefault:"core"`              // core | jetstream
	Durable  string        `env:"DURABLE" envDefault:"ppchat-gateway"` // jetstream durable 前缀
	IdemTTL  time.Duration `env:"IDEM_TTL" envDefault:"2m"`

	SubjectMessageCreated  string `env:"SUBJECT_MESSAGE_CREATED" envDefault:"chat.message.created"`
	SubjectMessageStatus   string `env:"SUBJECT_MESSAGE_STATUS" envDefault:"chat.message.status"`
	SubjectRoomDeactivated string `env:"SUBJECT_ROOM_DEACTIVATED" envDefault:"social.room.deactivated"`
	SubjectRoomActivated   string `env:"SUBJECT_ROOM_ACTIVATED" envDefault:"social.room.activated"`
	SubjectNotification    string `env:"SUBJECT_NOTIFICATION" envDefault:"social.notification"`
}

// KafkaConfig Brokers 为空时不写 Kafka 事件流
type KafkaConfig struct {
	Brokers      []string `env:"BROKERS" envSeparator:","`
	ClientID     string   `env:"CLIENT_ID" envDefault:"ppchat-gateway"`
	TopicPattern string   `env:"TOPIC_PATTERN" envDefault:"ppchat.events-%02d"`
	TopicCount   int      `env:"TOPIC_COUNT" envDefault:"4"`
	Partitions   int32    `env:"PARTITIONS" envDefault:"8"`
	Replication  int16    `env:"REPLICATION" envDefault:"1"`
	Retries      int      `env:"RETRIES" envDefault:"5"`
	Compression  string   `env:"COMPRESSION" envDefault:"snappy"`
	Version      string   `env:"VERSION" envDefault:"2.1.0"`
	EnsureTopics bool     `env:"ENSURE_TOPICS" envDefault:"true"`
}
