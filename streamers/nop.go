package streamers

// Nop discards every event. It is the default handler for library callers
// that do not render progress.
type Nop struct{}

func (Nop) ChatStarted(string, []string)                         {}
func (Nop) SpeakerSelected(int, string, int)                     {}
func (Nop) AgentThinking(string)                                 {}
func (Nop) PublishAnswerChunk(string, string)                    {}
func (Nop) MessageAppended(int, string, string, string)          {}
func (Nop) HistoryCleared(int)                                   {}
func (Nop) ChatFinished(string, int)                             {}
func (Nop) Error(error)                                          {}
func (Nop) BatchStarted(string, int)                             {}
func (Nop) BatchFinished(bool)                                   {}
func (Nop) GroupStarted(string, string, int)                     {}
func (Nop) CommandStarted(string, string, string, string, bool)  {}
func (Nop) CommandOutput(string, string, bool)                   {}
func (Nop) CommandFinished(string, string, bool, string, string) {}
func (Nop) CommandSkipped(string, string, string)                {}
func (Nop) GroupFinished(string, bool)                           {}
func (Nop) GroupDeclined(string)                                 {}
func (Nop) DependencyCycle([]string)                             {}
func (Nop) ScriptSaved(string)                                   {}
func (Nop) RecoveryStarted([]string, []string)                   {}
func (Nop) PlanReceived(string, string, int, string)             {}
func (Nop) FixStarted(string, string, string, string)            {}
func (Nop) FixFinished(string, string, bool, string)             {}
func (Nop) GroupRecovered(string, bool, string)                  {}
func (Nop) StageStarted(string, int, int)                        {}
func (Nop) StageCompleted(string, string)                        {}

var (
	_ ChatHandler      = Nop{}
	_ ExecutionHandler = Nop{}
	_ RecoveryHandler  = Nop{}
	_ StageHandler     = Nop{}
)
