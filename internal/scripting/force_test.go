package scripting

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/zap/zaptest"

	ecs "github.com/DangerosoDavo/verletecs"
	"github.com/DangerosoDavo/verletecs/verlet"
)

const harmonic = `
function force(x, y, z)
  return -x, -y, -z
end
`

func TestForceScriptEvaluates(t *testing.T) {
	script, err := CompileForceScript("harmonic.lua", harmonic, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	defer script.Close()

	eval, release, err := script.Evaluator()
	if err != nil {
		t.Fatalf("evaluator: %v", err)
	}
	got, err := eval(mgl64.Vec3{0.2, -0.5, 1})
	release()
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if got != (mgl64.Vec3{-0.2, 0.5, -1}) {
		t.Fatalf("unexpected force %v", got)
	}
	if script.Idle() != 1 {
		t.Fatalf("released VM should be pooled, idle=%d", script.Idle())
	}
}

func TestForceScriptRejectsBadSource(t *testing.T) {
	if _, err := CompileForceScript("broken.lua", "function force(", nil); err == nil {
		t.Fatalf("expected a parse error")
	}
	if _, err := CompileForceScript("missing.lua", "x = 1", nil); err == nil {
		t.Fatalf("expected missing force function to be rejected")
	}
	if _, err := CompileForceScript("boom.lua", "error('boom')", nil); err == nil {
		t.Fatalf("expected chunk runtime error")
	}
}

func TestForceScriptReportsBadReturn(t *testing.T) {
	script, err := CompileForceScript("short.lua", "function force(x, y, z) return x end", nil)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	defer script.Close()
	eval, release, _ := script.Evaluator()
	defer release()
	if _, err := eval(mgl64.Vec3{1, 2, 3}); err == nil {
		t.Fatalf("expected error for missing components")
	}
	// the VM stack must be clean for the next call
	if _, err := eval(mgl64.Vec3{1, 2, 3}); err == nil {
		t.Fatalf("expected the same error on a second call")
	}
}

func TestForceScriptConcurrentEvaluators(t *testing.T) {
	script, err := CompileForceScript("harmonic.lua", harmonic, nil)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	defer script.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			eval, release, err := script.Evaluator()
			if err != nil {
				errs <- err
				return
			}
			defer release()
			for i := 0; i < 100; i++ {
				f, err := eval(mgl64.Vec3{float64(g), float64(i), 1})
				if err != nil {
					errs <- err
					return
				}
				if f[0] != -float64(g) || f[1] != -float64(i) {
					errs <- errors.New("wrong force")
					return
				}
			}
		}(g)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent evaluation: %v", err)
	}
}

func TestForceScriptClosed(t *testing.T) {
	script, _ := CompileForceScript("harmonic.lua", harmonic, nil)
	script.Close()
	if _, _, err := script.Evaluator(); !errors.Is(err, ErrScriptClosed) {
		t.Fatalf("expected ErrScriptClosed, got %v", err)
	}
	script.Close()
}

func TestLuaLawMatchesBuiltin(t *testing.T) {
	script, err := LoadForceScript(filepath.Join("..", "..", "scripts", "harmonic.lua"), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	defer script.Close()

	run := func(law verlet.ForceLaw) []verlet.Particle {
		world := ecs.NewWorld()
		scheduler, _ := ecs.NewScheduler(world)
		defer scheduler.Close()
		if _, err := verlet.Setup(world, scheduler, verlet.Options{Particles: 12, ForceLaw: law}); err != nil {
			t.Fatalf("setup: %v", err)
		}
		if err := scheduler.Run(context.Background(), 10, 0); err != nil {
			t.Fatalf("run: %v", err)
		}
		particles, err := verlet.Snapshot(world)
		if err != nil {
			t.Fatalf("snapshot: %v", err)
		}
		return particles
	}

	want := run(verlet.HarmonicLaw{})
	got := run(script)
	for i := range want {
		if got[i].Position != want[i].Position || got[i].Velocity != want[i].Velocity {
			t.Fatalf("particle %d: lua %+v, builtin %+v", i, got[i], want[i])
		}
	}
}
