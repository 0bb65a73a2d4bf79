package config

import (
	"PPChat/data/database/mgo/mongoutil"
	"PPChat/logger"
	"PPChat/service/chat"
	"PPChat/service/kafka"
	mgoSrv "PPChat/service/mgo"
	"PPChat/service/natsx"
	redis "PPChat/service/storage/redis"
	"PPChat/tools/errs"
	"PPChat/tools/ids"
	"PPChat/tools/security"
	"context"
	"strings"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
)

// Global 进程配置，Load 之后只读
var Global AppConfig

// Load 读取环境变量（带默认值）并校验
func Load() error {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		return errs.WrapMsg(err, "parse env")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	Global = cfg
	return nil
}

func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return errs.New("PPCHAT_JWT_SECRET is required").Wrap()
	}
	switch c.Storage {
	case StorageMongo:
		if c.Mongo.Uri == "" && len(c.Mongo.Address) == 0 {
			return errs.New("PPCHAT_MONGO_URI or PPCHAT_MONGO_ADDRESS is required for mongo storage").Wrap()
		}
	case StorageMemory:
	default:
		return errs.New("unknown storage driver", "storage", c.Storage).Wrap()
	}
	if _, err := natsx.ParseMode(c.Nats.Mode); err != nil {
		return errs.WrapMsg(err, "nats mode")
	}
	if len(c.Kafka.Brokers) > 0 {
		if _, err := kafka.BuildConfig(kafkaConfigOf(c)); err != nil {
			return errs.WrapMsg(err, "kafka config")
		}
	}
	if c.SnowNode < 0 || c.SnowNode > 1023 {
		return errs.New("PPCHAT_SNOW_NODE out of range", "node", c.SnowNode).Wrap()
	}
	return nil
}

// ConfigAll 在 Load 之后调用：ids、日志、Redis、Mongo
func ConfigAll(ctx context.Context) error {
	ConfigIds()
	ConfigLogger()
	if err := ConfigRedis(); err != nil {
		return err
	}
	if Global.Storage == StorageMongo {
		ConfigMgo(ctx)
	}
	return nil
}

func ConfigIds() {
	logger.Info("[Config] snowflake node", zap.Int64("node", Global.SnowNode))
	ids.SetNodeID(Global.SnowNode)
}

func ConfigLogger() {
	logger.Init(Global.LogLevel, Global.LogFormat)
}

// ConfigRedis 未配置地址时跳过
func ConfigRedis() error {
	if Global.Redis.Addr == "" {
		logger.Info("[Config] redis disabled, presence mirror off")
		return nil
	}
	return redis.InitRedis(redis.Config{
		Addr:     Global.Redis.Addr,
		Password: Global.Redis.Password,
		DB:       Global.Redis.DB,
		PoolSize: Global.Redis.PoolSize,
	})
}

// ConfigMgo 后台连接并自动重连，就绪用 mgoSrv.WaitReady 等待
func ConfigMgo(ctx context.Context) {
	mgoSrv.StartAsync(ctx, MgoOptions())
}

func MgoOptions() *mongoutil.Config {
	return &mongoutil.Config{
		Uri:         Global.Mongo.Uri,
		Address:     Global.Mongo.Address,
		Database:    Global.Mongo.Database,
		Username:    Global.Mongo.Username,
		Password:    Global.Mongo.Password,
		AuthSource:  Global.Mongo.AuthSource,
		MaxPoolSize: Global.Mongo.MaxPoolSize,
		MaxRetry:    Global.Mongo.MaxRetry,
		AppName:     Global.NodeID,
	}
}

// ConfigNats 未配置服务器时返回 nil
func ConfigNats() (*natsx.NatsManager, error) {
	if len(Global.Nats.Servers) == 0 {
		logger.Info("[Config] nats disabled, events off")
		return nil, nil
	}
	mgr, err := natsx.NewNatsManager(natsx.NatsxConfig{
		Servers:  Global.Nats.Servers,
		Name:     Global.Nats.Name + "-" + Global.NodeID,
		User:     Global.Nats.User,
		Password: Global.Nats.Password,
		Token:    Global.Nats.Token,
	}, natsx.NatsxRecoverMiddleware(), natsx.NatsxIdemMiddleware(natsx.NewMemIdem(Global.Nats.IdemTTL), 0))
	if err != nil {
		return nil, errs.WrapMsg(err, "connect nats", "servers", strings.Join(Global.Nats.Servers, ","))
	}
	if err := chat.RegisterNatsRoutes(mgr, NatsSubjects()); err != nil {
		_ = mgr.Close()
		return nil, err
	}
	return mgr, nil
}

// ConfigKafka 未配置 broker 时返回 nil
func ConfigKafka() (*kafka.Producer, error) {
	if len(Global.Kafka.Brokers) == 0 {
		logger.Info("[Config] kafka disabled, event stream off")
		return nil, nil
	}
	p, err := kafka.NewProducer(KafkaProducerConfig())
	if err != nil {
		return nil, errs.WrapMsg(err, "connect kafka", "brokers", strings.Join(Global.Kafka.Brokers, ","))
	}
	return p, nil
}

func KafkaProducerConfig() kafka.Config { return kafkaConfigOf(&Global) }

func kafkaConfigOf(c *AppConfig) kafka.Config {
	k := c.Kafka
	return kafka.Config{
		Brokers:            k.Brokers,
		ClientID:           k.ClientID + "-" + c.NodeID,
		TopicPattern:       k.TopicPattern,
		TopicCount:         k.TopicCount,
		PartitionsPerTopic: k.Partitions,
		ReplicationFactor:  k.Replication,
		Retries:            k.Retries,
		Compression:        k.Compression,
		Version:            k.Version,
		EnsureTopics:       k.EnsureTopics,
	}
}

func NatsSubjects() chat.NatsSubjects {
	mode, _ := natsx.ParseMode(Global.Nats.Mode)
	return chat.NatsSubjects{
		MessageCreated:  Global.Nats.SubjectMessageCreated,
		MessageStatus:   Global.Nats.SubjectMessageStatus,
		RoomDeactivated: Global.Nats.SubjectRoomDeactivated,
		RoomActivated:   Global.Nats.SubjectRoomActivated,
		Notification:    Global.Nats.SubjectNotification,
		Durable:         Global.Nats.Durable,
		NodeID:          Global.NodeID,
		Mode:            mode,
	}
}

func JwtOptions() security.Options {
	opts := security.DefaultOptions([]byte(Global.JWT.Secret))
	opts.Alg = Global.JWT.Alg
	return opts
}

func WsServerConfig() chat.ServerConfig {
	return chat.ServerConfig{
		HandshakeTimeout: Global.WS.HandshakeTimeout,
		FrameTimeout:     Global.WS.FrameTimeout,
		Conn: chat.ConnConf{
			SendQueue:    Global.WS.SendQueue,
			WriteWait:    Global.WS.WriteWait,
			PingInterval: Global.WS.PingInterval,
			ReadLimit:    Global.WS.ReadLimit,
		},
	}
}
