package extract

import (
	"regexp"
	"strings"

	"github.com/bdobrica/Shoukan/internal/shoukan/resource"
)

// typeEntry is one row of the resource-type phrase table.
type typeEntry struct {
	typ     resource.Type
	phrases []string
}

// typeTable is scanned top to bottom; the first row with a matching phrase
// decides the resource type, so row order settles overlaps: "a VM to run
// docker" is a VM and "storage for container images" is a storage account.
var typeTable = []typeEntry{
	{resource.TypeVirtualMachine, []string{"vm", "vms", "virtual machine", "server", "instance", "compute", "windows server", "linux server", "ubuntu", "centos"}},
	{resource.TypeStorageAccount, []string{"storage", "storage account", "blob", "file storage", "queue", "table storage", "data storage"}},
	{resource.TypeWebApp, []string{"web app", "webapp", "app service", "website", "web application", "node.js", "python", "dotnet", "java", "php", "ruby"}},
	{resource.TypeSQLDatabase, []string{"sql", "database", "sql database", "sql server", "relational database", "rdbms"}},
	{resource.TypeCosmosDB, []string{"cosmos", "cosmos db", "nosql", "document database", "mongodb", "cassandra", "table api"}},
	{resource.TypeVirtualNetwork, []string{"vnet", "virtual network", "network", "subnet", "network security group", "nsg"}},
	{resource.TypeContainerInstance, []string{"container", "aci", "container instance", "docker", "containerized", "microservice"}},
	{resource.TypeAKSCluster, []string{"aks", "kubernetes", "k8s", "container cluster", "orchestration", "microservices"}},
	{resource.TypeCognitiveService, []string{"cognitive", "cognitive service", "openai", "computer vision", "text analytics", "speech service", "translator"}},
	{resource.TypeMachineLearning, []string{"machine learning", "ml workspace", "azure ml", "mlops"}},
}

// regionEntry maps a canonical region key to the phrases that select it.
type regionEntry struct {
	key     string
	aliases []string
}

var regionTable = []regionEntry{
	{"east_us", []string{"east us", "eastus", "virginia"}},
	{"west_us", []string{"west us", "westus", "california"}},
	{"central_us", []string{"central us", "centralus", "iowa"}},
	{"north_europe", []string{"north europe", "northeurope", "ireland"}},
	{"west_europe", []string{"west europe", "westeurope", "netherlands"}},
	{"uk_south", []string{"uk south", "uksouth", "london"}},
	{"southeast_asia", []string{"southeast asia", "southeastasia", "singapore"}},
	{"japan_east", []string{"japan east", "japaneast", "tokyo"}},
}

// regionDisplay renders a canonical key as "East Us".
func regionDisplay(key string) string {
	return resource.TitleCase(strings.ReplaceAll(key, "_", " "))
}

// vmSizeTiers lists explicit size codes, cheapest tier first.
var vmSizeTiers = []struct {
	tier  string
	codes []string
}{
	{"basic", []string{"b1s", "b1ms", "b2s", "b2ms"}},
	{"standard", []string{"d2s", "d4s", "d8s", "d16s"}},
	{"memory_optimized", []string{"e2s", "e4s", "e8s", "e16s"}},
	{"compute_optimized", []string{"f2s", "f4s", "f8s", "f16s"}},
}

// ramLadder maps requested memory to the smallest size that fits.
var ramLadder = []struct {
	maxGB int
	size  string
}{
	{1, "Standard_B1s"},
	{2, "Standard_B2s"},
	{4, "Standard_D2s_v3"},
	{8, "Standard_D4s_v3"},
	{16, "Standard_D8s_v3"},
}

const largestVMSize = "Standard_D16s_v3"

var (
	windowsWords = []string{"windows", "win"}
	linuxWords   = []string{"linux", "ubuntu", "centos", "debian"}
)

// runtimeTable is checked in order; "node" precedes "java" so "javascript"
// lands on node.
var runtimeTable = []struct {
	runtime resource.Runtime
	words   []string
}{
	{resource.RuntimeNode, []string{"node", "javascript"}},
	{resource.RuntimePython, []string{"python"}},
	{resource.RuntimeDotnet, []string{"dotnet", "c#", ".net"}},
	{resource.RuntimeJava, []string{"java"}},
	{resource.RuntimePHP, []string{"php"}},
	{resource.RuntimeRuby, []string{"ruby"}},
}

var planTable = []struct {
	word string
	plan string
}{
	{"basic", "B1"},
	{"standard", "S1"},
	{"premium", "P1v2"},
}

const defaultPlan = "F1"

// environmentTable is checked in order: production, development, testing.
var environmentTable = []struct {
	value string
	words []string
}{
	{"production", []string{"production"}},
	{"development", []string{"development", "dev"}},
	{"testing", []string{"test", "testing"}},
}

const (
	defaultContainerImage = "nginx:alpine"
	defaultContainerPort  = 80
)

// token is the character set allowed in names, usernames and project tags.
const token = `([A-Za-z0-9_-]+)`

var (
	namePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bname(?:\s*:\s*|\s+)(?:it\s+)?` + token),
		regexp.MustCompile(`(?i)\bcall\s+(?:it\s+)?` + token),
		regexp.MustCompile(`(?i)\bnamed\s+` + token),
		regexp.MustCompile(`(?i)\bcalled\s+` + token),
	}
	usernamePattern = regexp.MustCompile(`(?i)\busername[:\s]+` + token)
	projectPattern  = regexp.MustCompile(`(?i)\bproject[:\s]+` + token)
	ramPattern      = regexp.MustCompile(`(?i)\b(\d+)\s*(?:gb|gigabytes?|g)\b`)
	imagePattern    = regexp.MustCompile(`(?i)\bimage[:\s]+([A-Za-z0-9][A-Za-z0-9._/:@-]*)`)
	portPattern     = regexp.MustCompile(`(?i)\bport[:\s]+(\d{1,5})\b`)
	singleToken     = regexp.MustCompile(`^` + token + `$`)
)

// wordPatterns caches the whole-word matchers built by containsWord.
var wordPatterns = map[string]*regexp.Regexp{}

func init() {
	add := func(w string) {
		if _, ok := wordPatterns[w]; !ok {
			wordPatterns[w] = regexp.MustCompile(`(?i)(?:^|[^a-z0-9])` + regexp.QuoteMeta(w) + `(?:$|[^a-z0-9])`)
		}
	}
	for _, e := range typeTable {
		for _, p := range e.phrases {
			if isShortPhrase(p) {
				add(p)
			}
		}
	}
	for _, w := range windowsWords {
		add(w)
	}
	for _, w := range linuxWords {
		add(w)
	}
	for _, e := range environmentTable {
		for _, w := range e.words {
			add(w)
		}
	}
	for _, w := range []string{"cancel", "stop", "abort", "list", "show", "what", "resources"} {
		add(w)
	}
}

// isShortPhrase reports whether p is short enough that substring matching
// would misfire ("aks" inside "breaks"). Short phrases match as whole words.
func isShortPhrase(p string) bool {
	return len(p) <= 3
}

// containsWord reports whether w occurs in s as a whole word.
func containsWord(s, w string) bool {
	re, ok := wordPatterns[w]
	if !ok {
		re = regexp.MustCompile(`(?i)(?:^|[^a-z0-9])` + regexp.QuoteMeta(w) + `(?:$|[^a-z0-9])`)
	}
	return re.MatchString(s)
}

// containsAnyWord reports whether any of words occurs in s as a whole word.
func containsAnyWord(s string, words []string) bool {
	for _, w := range words {
		if containsWord(s, w) {
			return true
		}
	}
	return false
}

// ContainsWord is exported for the dialogue layer's control-word checks.
func ContainsWord(s, w string) bool {
	return containsWord(s, w)
}
