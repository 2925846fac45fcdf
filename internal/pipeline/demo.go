package pipeline

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// demoTruck is one row of the seeding dataset.
type demoTruck struct {
	blockID int
	req     AddTruckRequest
}

// demoTrucks spans blocks 1-5 with a mix of job, size, type and status.
var demoTrucks = []demoTruck{
	{1, AddTruckRequest{TruckID: "L9088UE", JobType: "DELIVERY", ContainerSize: "40", ContainerType: "DRY", CtrStatus: "FULL", Lokasi: "42 06 1", Block: "1G"}},
	{1, AddTruckRequest{TruckID: "H1917DW", JobType: "DELIVERY", ContainerSize: "40", ContainerType: "DRY", CtrStatus: "FULL", Lokasi: "76 02 1", Block: "1E"}},
	{2, AddTruckRequest{TruckID: "G8190OA", JobType: "DELIVERY", ContainerSize: "20", ContainerType: "DRY", CtrStatus: "FULL", Lokasi: "31 04 2", Block: "2A"}},
	{2, AddTruckRequest{TruckID: "H1647EA", JobType: "RECEIVING", ContainerSize: "20", ContainerType: "DRY", CtrStatus: "FULL", Lokasi: "13 05 2", Block: "2C"}},
	{3, AddTruckRequest{TruckID: "B9319BEI", JobType: "DELIVERY", ContainerSize: "40", ContainerType: "OVD", CtrStatus: "MTY", Lokasi: "78 03 1", Block: "3Z"}},
	{4, AddTruckRequest{TruckID: "E9015AD", JobType: "DELIVERY", ContainerSize: "20", ContainerType: "DRY", CtrStatus: "MTY", Lokasi: "15 10 1", Block: "4B"}},
	{5, AddTruckRequest{TruckID: "H9331OW", JobType: "RECEIVING", ContainerSize: "20", ContainerType: "DRY", CtrStatus: "FULL", Lokasi: "17 01 1", Block: "5G"}},
}

// DemoSize is the number of trucks PopulateDemo adds.
var DemoSize = len(demoTrucks)

// PopulateDemo clears every block and seeds the demo dataset through
// AddTruck. Trucks that fail are skipped; their errors are returned together
// with the number of trucks added.
func (p *Pipeline) PopulateDemo(ctx context.Context) (int, error) {
	cleared := p.queues.ClearAll()
	p.log.Info("Populating demo data", "cleared", cleared, "trucks", len(demoTrucks))

	var result *multierror.Error
	added := 0
	for _, d := range demoTrucks {
		if _, err := p.AddTruck(ctx, d.blockID, d.req); err != nil {
			result = multierror.Append(result, fmt.Errorf("demo truck %s: %w", d.req.TruckID, err))
			continue
		}
		added++
	}
	return added, result.ErrorOrNil()
}
