package logger

import (
	"runtime"
	"strings"
)

const basePackage = "nereus-network/nereus"

// callerPackageName resolves the package path of the CreateForPackage caller,
// trimmed to be relative to the module base package.
func callerPackageName() string {
	pc, _, _, _ := runtime.Caller(2)
	// For example: github.com/nereus-network/nereus/internal/chain.NewNGWriter
	pcName := runtime.FuncForPC(pc).Name()
	split1 := strings.SplitN(pcName, basePackage, 2)
	var packageAfterBase string
	if len(split1) < 2 {
		packageAfterBase = split1[0]
	} else {
		split2 := strings.SplitN(split1[1], ".", 2)
		packageAfterBase = split2[0]
	}
	return strings.Trim(packageAfterBase, "/")
}
