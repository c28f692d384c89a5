package compute

import "fmt"

// KernelID identifies one of the layout kernels.
type KernelID int

const (
	// KernelInit zeroes the velocity buffer.
	KernelInit KernelID = iota

	// KernelGravity overwrites force with the all-pairs gravity force.
	KernelGravity

	// KernelPrepareEdgeRepulsion refreshes per-pair start, tangent and
	// length from live positions.
	KernelPrepareEdgeRepulsion

	// KernelEdgeRepulsion adds node-to-edge repulsion to force.
	KernelEdgeRepulsion

	// KernelSpringDrag adds spring and drag forces to force.
	KernelSpringDrag

	// KernelIntegrateRK0 through KernelIntegrateRK3 are the Runge-Kutta
	// stages. RK3 commits position and velocity.
	KernelIntegrateRK0
	KernelIntegrateRK1
	KernelIntegrateRK2
	KernelIntegrateRK3

	// KernelIntegrateEuler is a single explicit Euler step.
	KernelIntegrateEuler

	// KernelCount is the number of kernels (sentinel for array sizing).
	KernelCount
)

// String returns the kernel's entry-point name.
func (k KernelID) String() string {
	switch k {
	case KernelInit:
		return "Init"
	case KernelGravity:
		return "CalcForcesGravity"
	case KernelPrepareEdgeRepulsion:
		return "PrepareEdgeRepulsion"
	case KernelEdgeRepulsion:
		return "CalcForcesEdgeRepulsion"
	case KernelSpringDrag:
		return "CalcForcesSpringDrag"
	case KernelIntegrateRK0:
		return "IntegrateRK0"
	case KernelIntegrateRK1:
		return "IntegrateRK1"
	case KernelIntegrateRK2:
		return "IntegrateRK2"
	case KernelIntegrateRK3:
		return "IntegrateRK3"
	case KernelIntegrateEuler:
		return "IntegrateEuler"
	default:
		return fmt.Sprintf("KernelID(%d)", int(k))
	}
}

// Valid reports whether k names a kernel.
func (k KernelID) Valid() bool {
	return k >= 0 && k < KernelCount
}

// AllKernels returns every kernel in declaration order.
func AllKernels() []KernelID {
	out := make([]KernelID, KernelCount)
	for i := range out {
		out[i] = KernelID(i)
	}
	return out
}

// ParamKind is the type of a kernel parameter.
type ParamKind int

const (
	ParamFloat32Buffer ParamKind = iota
	ParamInt32Buffer
	ParamInt32
	ParamFloat32
)

// IsBuffer reports whether the parameter is bound as a buffer.
func (k ParamKind) IsBuffer() bool {
	return k == ParamFloat32Buffer || k == ParamInt32Buffer
}

// Param describes one kernel parameter.
type Param struct {
	Name string
	Kind ParamKind

	// Writable buffers are written by the kernel.
	Writable bool
}

func f32in(name string) Param  { return Param{Name: name, Kind: ParamFloat32Buffer} }
func f32out(name string) Param { return Param{Name: name, Kind: ParamFloat32Buffer, Writable: true} }
func i32in(name string) Param  { return Param{Name: name, Kind: ParamInt32Buffer} }
func i32(name string) Param    { return Param{Name: name, Kind: ParamInt32} }
func f32(name string) Param    { return Param{Name: name, Kind: ParamFloat32} }

// rkStage is the parameter list shared by IntegrateRK1..RK3.
var rkStage = []Param{
	f32out("posX"), f32out("posY"), f32in("mass"),
	f32out("nodeK"), f32out("nodeL"), f32out("velocity"), f32in("force"),
	f32("stageWeight"), f32("timestep"), i32("numNodes"),
}

var signatures = [KernelCount][]Param{
	KernelInit: {f32out("velocity"), i32("numNodes")},
	KernelGravity: {
		f32in("posX"), f32in("posY"), f32in("mass"), f32out("force"),
		i32("numNodes"), i32("numNodesPadded"),
	},
	KernelPrepareEdgeRepulsion: {
		f32in("posX"), f32in("posY"), i32in("uniqueSources"), i32in("uniqueTargets"),
		f32out("startX"), f32out("startY"), f32out("tangentX"), f32out("tangentY"),
		f32out("currentLength"), i32("numEdgesUnique"),
	},
	KernelEdgeRepulsion: {
		f32in("posX"), f32in("posY"), f32in("mass"),
		f32in("startX"), f32in("startY"), f32in("tangentX"), f32in("tangentY"),
		f32in("currentLength"), f32in("massStart"), f32in("massEnd"),
		f32out("force"), i32("numNodes"), i32("numEdgesUniquePadded"),
	},
	KernelSpringDrag: {
		f32in("posX"), f32in("posY"), i32in("edges"), i32in("edgeOffsets"),
		i32in("edgeCounts"), f32in("edgeCoeffs"), f32in("edgeLengths"),
		f32in("velocity"), f32out("force"), i32("numNodes"),
	},
	KernelIntegrateRK0: {
		f32out("posX"), f32out("posY"), f32in("mass"),
		f32out("nodeK"), f32out("nodeL"), f32out("velocity"), f32in("force"),
		f32("timestep"), i32("numNodes"),
	},
	KernelIntegrateRK1: rkStage,
	KernelIntegrateRK2: rkStage,
	KernelIntegrateRK3: rkStage,
	KernelIntegrateEuler: {
		f32out("posX"), f32out("posY"), f32in("mass"), f32out("velocity"),
		f32in("force"), f32("timestep"), i32("numNodes"),
	},
}

// Signature returns the parameter list of kernel k.
// The returned slice must not be modified.
func Signature(k KernelID) []Param {
	if !k.Valid() {
		return nil
	}
	return signatures[k]
}

// CheckArgs validates launch arguments against Signature(k).
func CheckArgs(k KernelID, args []any) error {
	sig := Signature(k)
	if sig == nil {
		return fmt.Errorf("%w: unknown kernel %v", ErrKernelArgs, k)
	}
	if len(args) != len(sig) {
		return fmt.Errorf("%w: %v takes %d arguments, got %d", ErrKernelArgs, k, len(sig), len(args))
	}
	for i, p := range sig {
		if err := checkArg(p, args[i]); err != nil {
			return fmt.Errorf("%w: %v argument %d (%s): %v", ErrKernelArgs, k, i, p.Name, err)
		}
	}
	return nil
}

func checkArg(p Param, arg any) error {
	switch p.Kind {
	case ParamFloat32Buffer, ParamInt32Buffer:
		b, ok := arg.(Buffer)
		if !ok || b == nil {
			return fmt.Errorf("want buffer, got %T", arg)
		}
		want := Float32
		if p.Kind == ParamInt32Buffer {
			want = Int32
		}
		if b.Kind() != want {
			return fmt.Errorf("want %s buffer, got %s", want, b.Kind())
		}
	case ParamInt32:
		if _, ok := arg.(int32); !ok {
			return fmt.Errorf("want int32, got %T", arg)
		}
	case ParamFloat32:
		if _, ok := arg.(float32); !ok {
			return fmt.Errorf("want float32, got %T", arg)
		}
	}
	return nil
}
