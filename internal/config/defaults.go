package config

import "runtime"

const (
	defaultInputDir           = "~/scenes"
	defaultOutputDir          = "~/tiles"
	defaultScenePattern       = "*.obj"
	defaultLayer              = "base"
	defaultTileSize           = 256
	defaultBasePixelsPerUnit  = 1.0
	defaultMinPixelsPerUnit   = 32.0
	defaultEncodingFormat     = "png"
	defaultEncodingQuality    = 90
	defaultIntermediateFormat = "png"
	defaultBackground         = "#00000000"
	defaultColor              = "#8fa66b"
	defaultRenderers          = 2
	defaultStageCapacity      = 64
	defaultOptimizerWorkers   = 2
	defaultOutputWorkers      = 4
	defaultFailurePolicy      = FailurePolicyAbort
	defaultGCPercent          = 400
	defaultProgressInterval   = 2
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Failure policies accepted by pipeline.failure_policy.
const (
	FailurePolicyAbort     = "abort"
	FailurePolicySkipScene = "skip_scene"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			InputDir:  defaultInputDir,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir(),
		},
		Scenes: Scenes{
			Pattern: defaultScenePattern,
			Layer:   defaultLayer,
		},
		Tiling: Tiling{
			TileSize:          defaultTileSize,
			BasePixelsPerUnit: defaultBasePixelsPerUnit,
			MinPixelsPerUnit:  defaultMinPixelsPerUnit,
			AutoZoom:          true,
		},
		Encoding: Encoding{
			Format:  defaultEncodingFormat,
			Quality: defaultEncodingQuality,
		},
		Optimizer: Optimizer{
			IntermediateFormat: defaultIntermediateFormat,
		},
		Render: Render{
			Background: defaultBackground,
			Color:      defaultColor,
		},
		Pipeline: Pipeline{
			Renderers: defaultRenderers,
			Encoder: Stage{
				Parallelism: runtime.NumCPU(),
				Capacity:    defaultStageCapacity,
			},
			Optimizer: Stage{
				Parallelism: defaultOptimizerWorkers,
				Capacity:    defaultStageCapacity,
			},
			Output: Stage{
				Parallelism: defaultOutputWorkers,
				Capacity:    defaultStageCapacity,
			},
			FailurePolicy:    defaultFailurePolicy,
			GCPercent:        defaultGCPercent,
			ProgressInterval: defaultProgressInterval,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
