package polarislog

import (
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/grpclog"
)

// grpcLoggerV2 adapts logrus to grpclog.LoggerV2 so the Server
// Connector's gRPC transport logs through the same sink as the rest of
// the runtime.
type grpcLoggerV2 struct {
	e *logrus.Entry
}

// InstallGRPCLogger points gRPC's internal logging at logrus.
func InstallGRPCLogger() {
	grpclog.SetLoggerV2(&grpcLoggerV2{e: logrus.WithField("component", "grpc")})
}

func (g *grpcLoggerV2) Info(args ...interface{})                    { g.e.Info(args...) }
func (g *grpcLoggerV2) Infoln(args ...interface{})                  { g.e.Infoln(args...) }
func (g *grpcLoggerV2) Infof(format string, args ...interface{})    { g.e.Infof(format, args...) }
func (g *grpcLoggerV2) Warning(args ...interface{})                 { g.e.Warning(args...) }
func (g *grpcLoggerV2) Warningln(args ...interface{})               { g.e.Warningln(args...) }
func (g *grpcLoggerV2) Warningf(format string, args ...interface{}) { g.e.Warningf(format, args...) }
func (g *grpcLoggerV2) Error(args ...interface{})                   { g.e.Error(args...) }
func (g *grpcLoggerV2) Errorln(args ...interface{})                 { g.e.Errorln(args...) }
func (g *grpcLoggerV2) Errorf(format string, args ...interface{})   { g.e.Errorf(format, args...) }
func (g *grpcLoggerV2) Fatal(args ...interface{})                   { g.e.Fatal(args...) }
func (g *grpcLoggerV2) Fatalln(args ...interface{})                 { g.e.Fatalln(args...) }
func (g *grpcLoggerV2) Fatalf(format string, args ...interface{})   { g.e.Fatalf(format, args...) }
func (g *grpcLoggerV2) V(l int) bool { return l <= 0 || g.e.Logger.IsLevelEnabled(logrus.DebugLevel) }
