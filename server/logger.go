package server

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log 全局 SugaredLogger。InitLogger 之前是空实现，测试里不用初始化。
var Log = zap.NewNop().Sugar()

// 仿真与中继日志的滚动参数
const (
	logMaxSizeMB  = 10
	logMaxBackups = 3
	logMaxAgeDays = 7
)

// arenaEncoder 在 zap 生产配置上改成可读的时间、级别与短调用位置
func arenaEncoder() zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncodeCaller = zapcore.ShortCallerEncoder
	return zapcore.NewConsoleEncoder(cfg)
}

// InitLogger 文件记录全部 Debug 日志，stderr 只看 Info 以上。
// filePath 为空时只写 stderr。
func InitLogger(filePath string) error {
	enc := arenaEncoder()
	cores := []zapcore.Core{
		zapcore.NewCore(enc, zapcore.Lock(os.Stderr), zapcore.InfoLevel),
	}
	if filePath != "" {
		rot := &lumberjack.Logger{
			Filename:   filePath,
			MaxSize:    logMaxSizeMB,
			MaxBackups: logMaxBackups,
			MaxAge:     logMaxAgeDays,
		}
		cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(rot), zapcore.DebugLevel))
	}

	Log = zap.New(zapcore.NewTee(cores...), zap.AddCaller()).Sugar()
	return nil
}

// SyncLogger 退出前刷出缓冲
func SyncLogger() {
	_ = Log.Sync()
}
