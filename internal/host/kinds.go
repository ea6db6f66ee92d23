package host

// HookKind names a host event a handler can subscribe to.
type HookKind string

const (
	HookActionQuery   HookKind = "action.query"
	HookActionExecute HookKind = "action.execute"
	HookIntervalTick  HookKind = "interval.tick"
	HookIntervalDay   HookKind = "interval.day"
	HookNetworkChat   HookKind = "network.chat"
	HookNetworkJoin   HookKind = "network.join"
	HookNetworkLeave  HookKind = "network.leave"
)

var hookKinds = map[HookKind]struct{}{
	HookActionQuery:   {},
	HookActionExecute: {},
	HookIntervalTick:  {},
	HookIntervalDay:   {},
	HookNetworkChat:   {},
	HookNetworkJoin:   {},
	HookNetworkLeave:  {},
}

func IsKnownHook(k HookKind) bool {
	_, ok := hookKinds[k]
	return ok
}

// Hooks lists every hook kind in a stable order.
func Hooks() []HookKind {
	return []HookKind{
		HookActionQuery,
		HookActionExecute,
		HookIntervalTick,
		HookIntervalDay,
		HookNetworkChat,
		HookNetworkJoin,
		HookNetworkLeave,
	}
}

// ActionKind is the host's game action name.
type ActionKind string

const (
	ActionBannerPlace            ActionKind = "bannerplace"
	ActionBannerRemove           ActionKind = "bannerremove"
	ActionBannerSetName          ActionKind = "bannersetname"
	ActionCheatSet               ActionKind = "cheatset"
	ActionClearScenery           ActionKind = "clearscenery"
	ActionFootpathPlace          ActionKind = "footpathplace"
	ActionFootpathRemove         ActionKind = "footpathremove"
	ActionLandBuyRights          ActionKind = "landbuyrights"
	ActionLandLower              ActionKind = "landlower"
	ActionLandRaise              ActionKind = "landraise"
	ActionLargeSceneryPlace      ActionKind = "largesceneryplace"
	ActionLargeSceneryRemove     ActionKind = "largesceneryremove"
	ActionMazePlaceTrack         ActionKind = "mazeplacetrack"
	ActionMazeSetTrack           ActionKind = "mazesettrack"
	ActionParkMarketing          ActionKind = "parkmarketing"
	ActionParkSetEntranceFee     ActionKind = "parksetentrancefee"
	ActionParkSetLoan            ActionKind = "parksetloan"
	ActionParkSetName            ActionKind = "parksetname"
	ActionParkSetParameter       ActionKind = "parksetparameter"
	ActionParkSetResearchFunding ActionKind = "parksetresearchfunding"
	ActionRideCreate             ActionKind = "ridecreate"
	ActionRideDemolish           ActionKind = "ridedemolish"
	ActionRideEntranceExitPlace  ActionKind = "rideentranceexitplace"
	ActionRideSetName            ActionKind = "ridesetname"
	ActionRideSetPrice           ActionKind = "ridesetprice"
	ActionRideSetStatus          ActionKind = "ridesetstatus"
	ActionSmallSceneryPlace      ActionKind = "smallsceneryplace"
	ActionSmallSceneryRemove     ActionKind = "smallsceneryremove"
	ActionSurfaceSetStyle        ActionKind = "surfacesetstyle"
	ActionTileModify             ActionKind = "tilemodify"
	ActionTrackDesign            ActionKind = "trackdesign"
	ActionTrackPlace             ActionKind = "trackplace"
	ActionTrackRemove            ActionKind = "trackremove"
	ActionWallPlace              ActionKind = "wallplace"
	ActionWallRemove             ActionKind = "wallremove"
	ActionWaterLower             ActionKind = "waterlower"
	ActionWaterRaise             ActionKind = "waterraise"
)

// Tile element types.
const (
	ElementSurface  = "surface"
	ElementFootpath = "footpath"
	ElementTrack    = "track"
	ElementWall     = "wall"
	ElementEntrance = "entrance"
	ElementBanner   = "banner"
)

// KindSet is a set of action kinds, usually built from configuration.
type KindSet map[ActionKind]struct{}

func NewKindSet(kinds ...string) KindSet {
	s := make(KindSet, len(kinds))
	for _, k := range kinds {
		s[ActionKind(k)] = struct{}{}
	}
	return s
}

func (s KindSet) Has(k ActionKind) bool {
	_, ok := s[k]
	return ok
}
