package training

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the gRPC service the trainer sidecar exposes. Requests and responses are
// google.protobuf.Struct messages so the sidecar needs no generated Go code.
const ServiceName = "wgast.trainer.v1.Trainer"

const (
	methodRestore    = "/" + ServiceName + "/Restore"
	methodTrainEpoch = "/" + ServiceName + "/TrainEpoch"
	methodTest       = "/" + ServiceName + "/Test"
)

// GRPCTrainer calls a trainer sidecar over gRPC.
type GRPCTrainer struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

var _ Trainer = (*GRPCTrainer)(nil)

// NewGRPCTrainer connects to addr. timeout bounds each call; zero means no bound beyond ctx.
func NewGRPCTrainer(addr string, timeout time.Duration, opts ...grpc.DialOption) (*GRPCTrainer, error) {
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(10*1024*1024),
			grpc.MaxCallSendMsgSize(10*1024*1024),
		),
	}, opts...)

	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to gRPC server: %v", err)
	}
	return &GRPCTrainer{conn: conn, timeout: timeout}, nil
}

func (g *GRPCTrainer) Close() error {
	return g.conn.Close()
}

func (g *GRPCTrainer) invoke(ctx context.Context, method string, req map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", method, err)
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	out := &structpb.Struct{}
	if err := g.conn.Invoke(ctx, method, in, out); err != nil {
		return nil, fmt.Errorf("error calling %s: %w", method, err)
	}
	return out, nil
}

func (g *GRPCTrainer) Restore(ctx context.Context, ckpt Checkpoint, opts Options) error {
	_, err := g.invoke(ctx, methodRestore, map[string]any{
		"run_id":         ckpt.RunID,
		"epoch":          ckpt.Epoch,
		"model_path":     ckpt.ModelPath,
		"optimizer_path": ckpt.OptimizerPath,
		"options":        optionsToMap(opts),
	})
	return err
}

func (g *GRPCTrainer) TrainEpoch(ctx context.Context, runID string, epoch int, opts Options) (EpochResult, error) {
	resp, err := g.invoke(ctx, methodTrainEpoch, map[string]any{
		"run_id":  runID,
		"epoch":   epoch,
		"options": optionsToMap(opts),
	})
	if err != nil {
		return EpochResult{}, err
	}
	fields := resp.GetFields()
	return EpochResult{
		Loss:          fields["loss"].GetNumberValue(),
		ModelPath:     fields["model_path"].GetStringValue(),
		OptimizerPath: fields["optimizer_path"].GetStringValue(),
	}, nil
}

func (g *GRPCTrainer) Test(ctx context.Context, runID string, opts Options) (TestResult, error) {
	resp, err := g.invoke(ctx, methodTest, map[string]any{
		"run_id":  runID,
		"options": optionsToMap(opts),
	})
	if err != nil {
		return TestResult{}, err
	}
	metrics := make(map[string]float64)
	for name, v := range resp.GetFields()["metrics"].GetStructValue().GetFields() {
		metrics[name] = v.GetNumberValue()
	}
	return TestResult{Metrics: metrics}, nil
}

func optionsToMap(o Options) map[string]any {
	return map[string]any{
		"lr":           o.LearningRate,
		"batch_size":   o.BatchSize,
		"epochs":       o.Epochs,
		"num_workers":  o.NumWorkers,
		"image_size":   []any{o.ImageSize[0], o.ImageSize[1]},
		"patch_size":   []any{o.PatchSize[0], o.PatchSize[1]},
		"patch_stride": o.PatchStride,
		"test_patch":   o.TestPatch,
		"seed":         o.Seed,
		"train_dir":    o.TrainDir,
		"test_dir":     o.TestDir,
		"save_dir":     o.SaveDir,
	}
}
