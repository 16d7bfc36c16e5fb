package consts

// Session directory entries.
const (
	StartedFile    = "started.txt"
	CompletedFile  = "completed.txt"
	DeadlineFile   = "deadline.txt"
	ProcessFile    = "process.txt"
	ConfigFile     = "config.txt"
	AlgorithmsFile = "algorithms.txt"
	ResultFile     = "result.txt"
	TmpDirectory   = "tmp"
	OutputDir      = "output"
)

const (
	SessionPrefix = "run_"
	ImportPrefix  = "import_"
)

const (
	SolverBinaryName   = "opt_deadline"
	ResultFilePattern  = "output_result_Algorithm2*"
	DumpProcessMarker  = "----DUMP PROCESS----"
	NodesPlaceholder   = "@@nodes@@"
	DirPathPlaceholder = "@@DIRPATH@@"
)

const ConfigurationExtension = ".txt"
