package adapter

// Command is the closed set of operations the adapter dispatches.
type Command int

const (
	CommandGetStatus Command = iota + 1
	CommandSaveStatus
	CommandGetTree
	CommandSaveTree
	CommandExport
	CommandImport
	CommandDeleteTree
	CommandListTrees
)

var commandNames = map[Command]string{
	CommandGetStatus:  "get-status",
	CommandSaveStatus: "save-status",
	CommandGetTree:    "get-skill-tree",
	CommandSaveTree:   "save-skill-tree",
	CommandExport:     "export",
	CommandImport:     "import",
	CommandDeleteTree: "delete-skill-tree",
	CommandListTrees:  "list-skill-trees",
}

// Commands lists every command in declaration order.
func Commands() []Command {
	return []Command{
		CommandGetStatus, CommandSaveStatus,
		CommandGetTree, CommandSaveTree,
		CommandExport, CommandImport,
		CommandDeleteTree, CommandListTrees,
	}
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return "invalid"
}

// ParseCommand maps a wire name to its Command. Matching is exact.
func ParseCommand(s string) (Command, bool) {
	for c, name := range commandNames {
		if name == s {
			return c, true
		}
	}
	return 0, false
}
